// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// pocketchat is an interactive terminal chat client.
//
// Usage:
//
//	pocketchat                      Start the interactive REPL
//	pocketchat --model gpt-4o       Override the configured model
//	pocketchat --voice-demo "hi"    Run one mock voice exchange and exit
//
// Interactive commands:
//
//	/new              Start a fresh conversation
//	/list             List saved conversations
//	/resume N         Resume conversation number N from /list
//	/help             Show commands
//	/quit             Exit
//	Ctrl+C            Cancel the in-flight reply
//	Ctrl+D            Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/config"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/session"
	"github.com/jeranaias/pocketchat/internal/storage"
	"github.com/jeranaias/pocketchat/internal/voice"
)

func main() {
	modelFlag := flag.String("model", "", "override the configured model")
	voiceDemo := flag.String("voice-demo", "", "run one mock voice exchange with the given utterance and exit")
	flag.Parse()

	if err := run(*modelFlag, *voiceDemo); err != nil {
		fmt.Fprintf(os.Stderr, "pocketchat: %v\n", err)
		os.Exit(1)
	}
}

func run(modelOverride, voiceUtterance string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if modelOverride != "" {
		cfg.API.Model = modelOverride
	}

	// First run: no usable key yet. Prompt for one and persist it.
	if err := cfg.Validate(); err != nil {
		if err := promptForKey(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	client, err := newChatClient(cfg)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Dir, cfg.Storage.MaxConversations)
	if err != nil {
		return err
	}

	mgr, err := session.NewManager(client, store)
	if err != nil {
		store.Close()
		return err
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if secs := cfg.Session.AutosaveIntervalSecs; secs > 0 {
		go mgr.Autosave(ctx, time.Duration(secs)*time.Second)
	}

	// Hot-reload: a rebuilt client picks up key/model/base URL changes on
	// the next request.
	if path, err := config.Path(); err == nil {
		if updates, err := config.Watch(ctx, path); err == nil {
			go func() {
				for updated := range updates {
					if client, err := newChatClient(updated); err == nil {
						mgr.SetClient(client)
						fmt.Fprintln(os.Stderr, "[config reloaded]")
					}
				}
			}()
		}
	}

	if voiceUtterance != "" {
		return runVoiceDemo(ctx, mgr, cfg, voiceUtterance)
	}

	return repl(ctx, mgr, cfg)
}

// newChatClient builds a chat client from the file config.
func newChatClient(cfg *config.Config) (*chat.Client, error) {
	return chat.NewClient(chat.Config{
		BaseURL:           cfg.API.BaseURL,
		APIKey:            cfg.API.Key,
		Model:             cfg.API.Model,
		Temperature:       cfg.API.Temperature,
		MaxTokens:         cfg.API.MaxTokens,
		RequestsPerMinute: cfg.API.RateLimitPerMin,
	})
}

// promptForKey reads an API key without echo and saves the config.
func promptForKey(cfg *config.Config) error {
	fmt.Print("API key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	cfg.API.Key = strings.TrimSpace(string(key))
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	path, _ := config.Path()
	fmt.Printf("Saved to %s\n", path)
	return nil
}

// =============================================================================
// STREAMING OUTPUT
// =============================================================================

// deltaPrinter turns conversation snapshots into incremental stdout
// writes: only the not-yet-printed suffix of the reply is written.
type deltaPrinter struct {
	mu      sync.Mutex
	printed int
}

func (p *deltaPrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = 0
}

func (p *deltaPrinter) observe(snap *model.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := snap.LastMessage()
	if last == nil || last.Role != model.RoleAssistant {
		return
	}
	if len(last.Content) > p.printed {
		fmt.Print(last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

// =============================================================================
// REPL
// =============================================================================

func repl(ctx context.Context, mgr *session.Manager, cfg *config.Config) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	historyPath := loadHistory(line)
	defer saveHistory(line, historyPath)

	printer := &deltaPrinter{}
	mgr.SetUpdateCallback(printer.observe)

	// Ctrl+C during streaming cancels the in-flight request only; at the
	// prompt liner reports it as ErrPromptAborted.
	var streamCancel context.CancelFunc
	var cancelMu sync.Mutex
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			cancelMu.Lock()
			if streamCancel != nil {
				streamCancel()
			}
			cancelMu.Unlock()
		}
	}()

	fmt.Printf("pocketchat (%s). Type /help for commands.\n\n", cfg.API.Model)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// Ctrl+C at the prompt or EOF: leave cleanly.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(mgr, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		sendCtx, cancel := context.WithCancel(ctx)
		cancelMu.Lock()
		streamCancel = cancel
		cancelMu.Unlock()

		printer.reset()
		_, err = mgr.Send(sendCtx, input)

		cancelMu.Lock()
		streamCancel = nil
		cancelMu.Unlock()
		cancel()

		switch {
		case errors.Is(err, context.Canceled):
			fmt.Println("\n[cancelled]")
		case err != nil:
			fmt.Fprintf(os.Stderr, "\n[error] %v\n", err)
		default:
			fmt.Println()
		}
		fmt.Println()
	}
}

// handleCommand processes a slash command. Returns true to exit.
func handleCommand(mgr *session.Manager, input string) (bool, error) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/new", "/n":
		mgr.NewConversation()
		fmt.Println("[new conversation]")
		return false, nil

	case "/list", "/l":
		printList(mgr)
		return false, nil

	case "/resume", "/r":
		if len(args) == 0 {
			return false, errors.New("usage: /resume N")
		}
		return false, resume(mgr, args[0])

	case "/help", "/h", "/?":
		printHelp()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

func printList(mgr *session.Manager) {
	list := mgr.List()
	if len(list) == 0 {
		fmt.Println("[no conversations]")
		return
	}
	for i, conv := range list {
		fmt.Printf("%3d. %s (%d messages, %s)\n",
			i+1, conv.Title, conv.MessageCount(),
			conv.UpdatedAt.Format("Jan 2 15:04"))
	}
}

func resume(mgr *session.Manager, arg string) error {
	list := mgr.List()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		return fmt.Errorf("no conversation %q (see /list)", arg)
	}

	conv := list[n-1]
	if err := mgr.Resume(conv.ID); err != nil {
		return err
	}
	fmt.Printf("[resumed %q]\n", conv.Title)
	for _, msg := range conv.Messages {
		fmt.Printf("%s: %s\n", msg.Role.DisplayName(), msg.Preview(80))
	}
	return nil
}

func printHelp() {
	fmt.Println("  /new          start a fresh conversation")
	fmt.Println("  /list         list saved conversations")
	fmt.Println("  /resume N     resume conversation N")
	fmt.Println("  /quit         exit")
	fmt.Println("  Ctrl+C        cancel the in-flight reply")
}

// =============================================================================
// VOICE DEMO
// =============================================================================

// printSpeaker writes spoken replies to stdout.
type printSpeaker struct{}

func (printSpeaker) Speak(ctx context.Context, text string) error {
	fmt.Printf("[speaking] %s\n", text)
	return nil
}

// runVoiceDemo performs one exchange using the mock transcriber, as if
// the utterance had been spoken.
func runVoiceDemo(ctx context.Context, mgr *session.Manager, cfg *config.Config, utterance string) error {
	ex := &voice.Exchange{
		Transcriber:  &voice.MockTranscriber{Transcripts: []string{utterance}},
		OnTranscript: func(t string) { fmt.Printf("[heard] %s\n", t) },
	}
	if cfg.Voice.SpeakReplies {
		ex.Speaker = printSpeaker{}
	}

	reply, err := mgr.SpeakExchange(ctx, ex)
	if err != nil {
		return err
	}
	if ex.Speaker == nil {
		fmt.Println(reply)
	}
	return nil
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

func loadHistory(line *liner.State) string {
	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "history")
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return path
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
