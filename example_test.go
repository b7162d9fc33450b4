package goMagicLink_test

import (
	"context"
	"errors"
	"fmt"

	goMagicLink "github.com/MrEthical07/goMagicLink"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exampleEngine() (*goMagicLink.Engine, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := goMagicLink.New().WithRedis(rdb).Build()
	if err != nil {
		panic(err)
	}
	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// ExampleEngine_CheckAndRecord shows the request side: three links per
// fifteen minutes, then a typed denial.
func ExampleEngine_CheckAndRecord() {
	engine, done := exampleEngine()
	defer done()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		res, err := engine.CheckAndRecord(ctx, "alice@example.com")
		if err != nil {
			fmt.Println("store error:", err)
			return
		}
		fmt.Println(res.Allowed, res.Count)
	}
	// Output:
	// true 1
	// true 2
	// true 3
	// false 3
}

// ExampleEngine_ValidateToken shows the redemption side and the attempt cap.
func ExampleEngine_ValidateToken() {
	engine, done := exampleEngine()
	defer done()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		res, err := engine.ValidateToken(ctx, "link-token", "alice@example.com", "magic_link_verify")
		if err != nil {
			fmt.Println("store error:", err)
			return
		}
		var invalid *goMagicLink.InvalidTokenError
		if errors.As(res.Err(), &invalid) {
			fmt.Println(res.Status, invalid.Reason)
			continue
		}
		fmt.Println(res.Status, res.Attempts)
	}
	// Output:
	// valid 1
	// valid 2
	// valid 3
	// invalid attempts_exceeded
}

// ExampleConfig_Lint shows how to surface risky settings at startup.
func ExampleConfig_Lint() {
	cfg := goMagicLink.DefaultConfig()
	cfg.Token.ExpiringActions = nil

	for _, w := range cfg.Lint().BySeverity(goMagicLink.LintHigh) {
		fmt.Println(w.Severity, w.Code)
	}
	// Output:
	// high expiry_unenforced
}
