package pipeline

import "fmt"

// VoiceAgentBuilder assembles the conversation pipeline. Every stage has a
// fixed slot, so the redactor always sits between speech-to-text and the
// user context whatever order the With calls are made in.
type VoiceAgentBuilder struct {
	slots map[string]FrameProcessor
}

func NewVoiceAgentBuilder() *VoiceAgentBuilder {
	return &VoiceAgentBuilder{slots: make(map[string]FrameProcessor, len(Order))}
}

func (b *VoiceAgentBuilder) with(stage string, p FrameProcessor) *VoiceAgentBuilder {
	if p != nil {
		b.slots[stage] = p
	}
	return b
}

func (b *VoiceAgentBuilder) WithInput(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageInput, p)
}

func (b *VoiceAgentBuilder) WithSTT(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageSpeechToText, p)
}

func (b *VoiceAgentBuilder) WithRedactor(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StagePIIRedactor, p)
}

func (b *VoiceAgentBuilder) WithUserContext(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageContextUser, p)
}

func (b *VoiceAgentBuilder) WithLLM(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageLanguageModel, p)
}

func (b *VoiceAgentBuilder) WithTTS(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageSpeechSynthesis, p)
}

func (b *VoiceAgentBuilder) WithOutput(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageOutput, p)
}

func (b *VoiceAgentBuilder) WithAssistantContext(p FrameProcessor) *VoiceAgentBuilder {
	return b.with(StageContextAssistant, p)
}

// Build fails when a slot is empty rather than substituting a no-op stage.
func (b *VoiceAgentBuilder) Build(cfg Config) (*Pipeline, error) {
	procs := make([]FrameProcessor, 0, len(Order))
	for _, stage := range Order {
		p, ok := b.slots[stage]
		if !ok {
			return nil, fmt.Errorf("pipeline: missing %s stage", stage)
		}
		procs = append(procs, p)
	}
	return New(cfg, procs...), nil
}
