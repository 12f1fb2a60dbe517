package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medagent/voicecall/internal/app"
	"github.com/medagent/voicecall/internal/call"
	"github.com/medagent/voicecall/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	sinks := call.Sinks{
		OnTranscript: func(text string, isFinal bool) {
			if isFinal {
				log.Printf("you: %s", text)
			} else {
				log.Printf("  ... %s", text)
			}
		},
		OnMessage: func(msg call.Message) {
			log.Printf("%s: %s", msg.Role, msg.Content)
		},
		OnError: func(message string) {
			log.Printf("error: %s", message)
		},
		OnTick: func(elapsed int) {
			if elapsed%30 == 0 {
				log.Printf("call duration: %ds", elapsed)
			}
		},
	}

	result, err := app.Build(cfg, app.Options{
		Responder: app.NewCannedResponder(),
		Sinks:     sinks,
	})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	if err := result.Orchestrator.StartCall(); err != nil {
		log.Fatalf("call start failed: %v", err)
	}
	log.Printf("call started, voice=%s doctor=%d", cfg.DefaultVoiceID, cfg.DoctorID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	result.Orchestrator.StopCall()
	log.Printf("call ended")
}
