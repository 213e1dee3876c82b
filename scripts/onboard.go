package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/harunnryd/checky/pkg/checky"
	"github.com/harunnryd/checky/pkg/childcfg"
)

const usage = `usage: onboard [-config=...] <command> [flags]

commands:
  create -age=7 -pin=1234 [-voice=de-DE-Standard-A]
  update -pin=1234 [-age=8] [-voice=de-DE-Standard-C]
  show
  delete -pin=1234`

func main() {
	configPath := flag.String("config", "", "")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := checky.LoadConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, closeStore, err := checky.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Println("store error:", err)
		os.Exit(1)
	}
	defer closeStore()
	if cfg.Store.Provider == "memory" {
		fmt.Println("warning: memory store, changes are lost when this command exits")
	}

	if err := run(ctx, store, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Println("error:", err)
		closeStore()
		os.Exit(1)
	}
}

func run(ctx context.Context, store childcfg.Store, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	age := fs.Int("age", 0, "child age, 5 to 10")
	pin := fs.String("pin", "", "4 digit parent PIN")
	voice := fs.String("voice", "", "TTS voice id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch cmd {
	case "create":
		cfg, err := store.CreateUser(ctx, *age, *pin, *voice)
		if err != nil {
			return err
		}
		printConfig(cfg)
	case "update":
		var u childcfg.Update
		if set["age"] {
			u.ChildAge = age
		}
		if set["voice"] {
			u.VoiceID = voice
		}
		cfg, err := store.UpdateConfiguration(ctx, *pin, u)
		if err != nil {
			return err
		}
		printConfig(cfg)
	case "show":
		cfg, err := store.FetchChildConfiguration(ctx)
		if err != nil {
			return err
		}
		if cfg == nil {
			return childcfg.ErrNoUser
		}
		printConfig(cfg)
	case "delete":
		ok, err := store.AuthenticatePIN(ctx, *pin)
		if err != nil {
			return err
		}
		if !ok {
			return childcfg.ErrBadPIN
		}
		if err := store.DeleteUser(ctx); err != nil {
			return err
		}
		fmt.Println("deleted")
	default:
		return errors.New("unknown command: " + cmd)
	}
	return nil
}

func printConfig(c *childcfg.Configuration) {
	fmt.Printf("id: %d\nchild_age: %d\nvoice_id: %s\nupdated_at: %s\n",
		c.ID, c.ChildAge, c.VoiceID, c.UpdatedAt.Format(time.RFC3339))
}
