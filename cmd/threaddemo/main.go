package main

import (
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"coopweb/internal/thread"
)

func main() {
	var (
		items    int
		capacity int
		verbose  bool
	)
	flag.IntVar(&items, "items", 10, "Items to pass from producer to consumer.")
	flag.IntVar(&capacity, "cap", 2, "Bounded buffer capacity.")
	flag.BoolVar(&verbose, "v", false, "Log scheduler events.")
	flag.Parse()
	if capacity < 1 {
		capacity = 1
	}

	cfg := thread.Config{}
	if verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	rt := thread.New(cfg)

	log.Println("cooperative thread demo starting")
	log.Printf("config: items=%d cap=%d", items, capacity)

	// -------------------------------------------------------------------
	// 1) Producer/consumer over a mutex and two condition variables
	// -------------------------------------------------------------------
	mu := rt.NewMutex()
	notFull := rt.NewCond()
	notEmpty := rt.NewCond()
	var buf []int

	producer, err := rt.Create(func(any) {
		for i := 1; i <= items; i++ {
			mu.Acquire()
			for len(buf) == capacity {
				notFull.Wait(mu)
			}
			buf = append(buf, i)
			log.Printf("thread %d: produced %d (buffered %d)", rt.ID(), i, len(buf))
			notEmpty.Signal(mu)
			mu.Release()
		}
		rt.Exit(items)
	}, nil)
	if err != nil {
		log.Fatalf("create producer: %v", err)
	}

	consumer, err := rt.Create(func(any) {
		sum := 0
		for n := 0; n < items; n++ {
			mu.Acquire()
			for len(buf) == 0 {
				notEmpty.Wait(mu)
			}
			v := buf[0]
			buf = buf[1:]
			sum += v
			log.Printf("thread %d: consumed %d", rt.ID(), v)
			notFull.Signal(mu)
			mu.Release()
		}
		rt.Exit(sum)
	}, nil)
	if err != nil {
		log.Fatalf("create consumer: %v", err)
	}

	// The producer may be gone before anyone could join it, so only the
	// consumer is joined. Its exit code is the sum of consumed items.
	if _, sum, err := rt.Wait(consumer); err != nil {
		log.Printf("wait %d: %v", consumer, err)
	} else {
		log.Printf("thread %d exited with sum %d (producer was %d)", consumer, sum, producer)
	}

	// -------------------------------------------------------------------
	// 2) Lazy kill: a killed thread never runs its body
	// -------------------------------------------------------------------
	victim, _ := rt.Create(func(any) {
		log.Println("victim ran (unexpected)")
	}, nil)
	if _, err := rt.Kill(victim); err != nil {
		log.Fatalf("kill: %v", err)
	}
	if _, code, err := rt.Wait(victim); err == nil {
		log.Printf("thread %d was killed, exit code %d", victim, code)
	}

	if _, err := rt.Yield(thread.Any); errors.Is(err, thread.ErrNoRunnable) {
		log.Println("no runnable threads left")
	}

	notEmpty.Destroy()
	notFull.Destroy()
	mu.Destroy()
	if err := rt.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("Done.")
}
