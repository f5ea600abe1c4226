package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/faultkeeper/internal/control"
	"github.com/vietddude/faultkeeper/internal/core/config"
	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
	"github.com/vietddude/faultkeeper/internal/resilience/retry"
)

// A scripted slideshow host: it embeds the supervisor, loads images through
// the retry executor and reports display failures until the system escalates.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Default()
	if path := os.Getenv("FAULTKEEPER_CONFIG"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	sup, err := control.New(cfg)
	if err != nil {
		log.Fatalf("Failed to init supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		log.Fatalf("Failed to start supervisor: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = sup.Stop(stopCtx)
	}()

	// 1. Watch for safe-mode events
	events, unsubscribe := sup.Events(64)
	defer unsubscribe()
	go func() {
		for e := range events {
			switch e.Kind {
			case recovery.EventEmergency, recovery.EventEscalation:
				fmt.Printf("!! %s: %s (%s)\n", e.Kind, e.Component, e.Reason)
			case recovery.EventTransition:
				fmt.Printf("-> %s %s => %s\n", e.Component, e.From, e.To)
			}
		}
	}()

	// 2. The display strategy only succeeds from its second call
	displayTries := 0
	err = sup.RegisterStrategy(domain.ComponentDisplay, recovery.RecoverableFunc(func() bool {
		displayTries++
		return displayTries > 1
	}))
	if err != nil {
		log.Fatalf("Failed to register display strategy: %v", err)
	}

	// 3. Load a few flaky images
	fmt.Println("=== Loading images ===")
	for i := 1; i <= 5; i++ {
		path := fmt.Sprintf("/photos/img_%03d.jpg", i)
		res := retry.Do(sup.Executor(), domain.CategoryImageLoading, func() ([]byte, error) {
			if rand.IntN(3) == 0 {
				return nil, errors.New("decode failed")
			}
			return []byte(path), nil
		})
		if !res.OK {
			sup.Reporter().ImageError(path, res.Err)
		}
		fmt.Printf("%s: ok=%t attempts=%d\n", path, res.OK, res.Attempts)
	}

	// 4. Lose the display twice
	fmt.Println("\n=== Display failures ===")
	for i := 0; i < 2; i++ {
		keepRunning := sup.Reporter().DisplayError(errors.New("hdmi signal lost"))
		fmt.Printf("display failure %d: continue=%t\n", i+1, keepRunning)
	}

	// 5. Show the snapshot
	snap := sup.SystemStatus()
	fmt.Printf("\nSystem health: %s (escalated=%t)\n", snap.SystemHealth, snap.Escalated)
	for name, c := range snap.Components {
		fmt.Printf("  %-15s %-20s errors=%d attempts=%d/%d\n",
			name, c.State, c.ErrorCount, c.RecoveryAttempts, c.MaxRecoveryAttempts)
	}
}
