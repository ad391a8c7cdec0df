// Package main steps a scenario timeline and prints the animated state of
// every scene object after each frame.
//
// Usage:
//
//	go run ./cmd/sequencer --scenario shot.yaml [flags]
//
// Flags:
//
//	--config <path>     YAML configuration (defaults apply when empty)
//	--scenario <path>   Scenario to play
//	--dt <seconds>      Frame step (default 1/30)
//	--duration <secs>   Stop after this much time even when looping
//	--loop              Loop the sequence
//	--watch             Keep running after playback and reload logging on config changes
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/edwinsyarief/moviescene/config"
	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/scenario"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var (
	configFlag   = flag.String("config", "", "Configuration file")
	scenarioFlag = flag.String("scenario", "", "Scenario file to play")
	dtFlag       = flag.Float64("dt", 1.0/30, "Frame step in seconds")
	durationFlag = flag.Float64("duration", 10, "Maximum playback time in seconds")
	loopFlag     = flag.Bool("loop", false, "Loop the sequence")
	watchFlag    = flag.Bool("watch", false, "Watch the configuration file after playback")
)

func main() {
	flag.Parse()
	if err := run(os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("sequencer failed")
	}
}

func run(out io.Writer) error {
	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			return err
		}
	}
	cfg.ApplyLogging(os.Stderr)

	if *scenarioFlag == "" {
		flag.Usage()
		return eris.New("--scenario is required")
	}
	s, err := scenario.Load(*scenarioFlag)
	if err != nil {
		return err
	}
	l, err := evaluation.NewLinker(evaluation.Options{Name: s.Name, Config: cfg})
	if err != nil {
		return err
	}
	built, err := s.Build(l)
	if err != nil {
		return err
	}

	rt := evaluation.NewRuntime(l)
	rt.Play(built.Sequence, evaluation.PlayOptions{Loop: *loopFlag})
	ids := make([]string, 0, len(built.Objects))
	for id := range built.Objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for elapsed := 0.0; elapsed < *durationFlag && len(rt.Playing()) > 0; elapsed += *dtFlag {
		if err := rt.Tick(*dtFlag); err != nil {
			return err
		}
		fmt.Fprintf(out, "t=%.3f\n", elapsed)
		for _, id := range ids {
			printObject(out, id, built.Objects[id])
		}
	}
	// One more tick lets finished instances unlink and restore.
	if err := rt.Tick(*dtFlag); err != nil {
		return err
	}
	log.Info().Int("collected", l.CollectGarbage()).Msg("playback finished")

	if !*watchFlag || *configFlag == "" {
		return nil
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return config.Watch(ctx, *configFlag, func(c *config.Config) {
		c.ApplyLogging(os.Stderr)
		log.Info().Str("path", *configFlag).Msg("configuration reloaded")
	})
}

func printObject(out io.Writer, id string, obj any) {
	switch o := obj.(type) {
	case *object.Actor:
		t := o.Root.WorldTransform()
		fmt.Fprintf(out, "  %-12s opacity=%.3f hidden=%t location=(%.3f, %.3f, %.3f) mobility=%s\n",
			id, o.Opacity, o.Hidden, t.Translation.X, t.Translation.Y, t.Translation.Z, o.Root.Mobility)
	case *object.SceneComponent:
		t := o.WorldTransform()
		fmt.Fprintf(out, "  %-12s location=(%.3f, %.3f, %.3f) mobility=%s\n",
			id, t.Translation.X, t.Translation.Y, t.Translation.Z, o.Mobility)
	case *object.Light:
		fmt.Fprintf(out, "  %-12s intensity=%.3f enabled=%t\n", id, o.GetIntensity(), o.GetEnabled())
	}
}
