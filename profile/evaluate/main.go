// Profiling:
// go build ./profile/evaluate
// go tool pprof -http=":8000" -nodefraction=0.001 ./evaluate cpu.pprof

package main

import (
	"strconv"

	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
)

func main() {
	rounds := 5
	frames := 2000
	actors := 500
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, frames, actors)
	p.Stop()
}

func run(rounds, frames, numActors int) {
	for range rounds {
		l, err := evaluation.NewLinker(evaluation.Options{Name: "profile"})
		if err != nil {
			panic(err)
		}
		seq := &tracks.Sequence{Name: "profile", Range: tracks.Range{Start: 0, End: float64(frames)}, DefaultCompletion: tracks.RestoreState}
		for i := range numActors {
			id := "actor" + strconv.Itoa(i)
			l.Bindings.Bind(id, object.NewActor(id))
			seq.Tracks = append(seq.Tracks, &tracks.Track{
				Name:          id,
				ObjectBinding: id,
				Sections: []tracks.Section{
					transform("base", blend.Absolute, float64(frames)),
					transform("shake", blend.Additive, float64(frames)/2),
				},
			})
		}
		rt := evaluation.NewRuntime(l)
		rt.Play(seq, evaluation.PlayOptions{})
		for range frames + 1 {
			if err := rt.Tick(1); err != nil {
				panic(err)
			}
		}
	}
}

func transform(name string, kind blend.Kind, end float64) *tracks.PropertySection {
	s := &tracks.PropertySection{
		SectionBase: tracks.SectionBase{Name: name, Range: tracks.Range{Start: 0, End: end}, Blend: kind},
		Property:    "Transform",
		Path:        object.TransformPath,
	}
	for c := range 3 {
		s.Channels[c] = channel.NewCurve(
			channel.Key{Time: 0, Value: 0, Interp: channel.Cubic},
			channel.Key{Time: end / 2, Value: float64(10 * (c + 1)), Interp: channel.Cubic},
			channel.Key{Time: end, Value: 0},
		)
	}
	return s
}
