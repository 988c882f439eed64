// Command spatialize renders a mono audio file as a source orbiting the
// listener and writes the binaural result to a 16-bit stereo WAV file.
//
// Usage:
//
//	spatialize -in voice.mp3 -out scene.wav
//	spatialize -in noise.wav -room hall -radius 4 -period 12 -out scene.wav
//
// WAV, MP3 and Ogg Vorbis inputs are supported; multichannel input is
// downmixed to mono before spatialization.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/cwbudde/algo-binaural/hrtf"
	"github.com/cwbudde/algo-binaural/internal/log"
	"github.com/cwbudde/algo-binaural/render"
	"github.com/cwbudde/algo-binaural/room"
	"github.com/cwbudde/algo-binaural/spatial"
)

func main() {
	in := flag.String("in", "", "input audio file (wav, mp3 or ogg)")
	out := flag.String("out", "out.wav", "output WAV file")
	hrtfDir := flag.String("hrtf", "", "HRTF measurement directory (default: synthetic spherical-head set)")
	roomName := flag.String("room", "medium", "room preset: none, small, medium or hall")
	radius := flag.Float64("radius", 2, "orbit radius in meters")
	period := flag.Float64("period", 8, "orbit period in seconds")
	gain := flag.Float64("gain", 1, "source gain")
	send := flag.Float64("send", 0.3, "room send level")
	blockSize := flag.Int("block", 512, "render block size in samples (power of 2)")
	logLevel := flag.String("log", "info", "log level: debug, info, warn or error")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spatialize -in <file> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Renders a mono source orbiting the listener to stereo WAV.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Init(*logLevel)

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*in, *out, *hrtfDir, *roomName, *radius, *period, *gain, *send, *blockSize); err != nil {
		log.Error("render failed", "error", err)
		os.Exit(1)
	}
}

func run(in, out, hrtfDir, roomName string, radius, period, gain, send float64, blockSize int) error {
	samples, sampleRate, err := decodeMono(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", in, err)
	}

	log.Info("decoded input", "file", in, "samples", len(samples), "rate", sampleRate)

	dataset, err := loadDataset(hrtfDir)
	if err != nil {
		return err
	}

	roomModel, err := roomByName(roomName)
	if err != nil {
		return err
	}

	engine, err := render.NewEngine(render.Config{
		SampleRate: float64(sampleRate),
		BlockSize:  blockSize,
		Room:       roomModel,
		DitherBits: 16,
		DitherSeed: 1,
	}, dataset)
	if err != nil {
		return err
	}

	src := &sliceSource{samples: samples}

	startPos := orbitPosition(radius, period, 0)

	handle, err := engine.AddObject(src, render.ObjectOptions{
		Position: startPos,
		Gain:     gain,
		Send:     send,
	})
	if err != nil {
		return err
	}

	// Keep rendering past the end of the input so the reverb tail and
	// the convolution history drain into the file.
	tailSeconds := 0.5
	if roomModel != nil {
		tailSeconds += roomModel.DecayTime
	}

	totalBlocks := (len(samples)+blockSize-1)/blockSize + int(math.Ceil(tailSeconds*float64(sampleRate)/float64(blockSize)))

	pcm := make([]int, 0, 2*totalBlocks*blockSize)

	for block := range totalBlocks {
		t := float64(block*blockSize) / float64(sampleRate)
		_ = engine.UpdatePosition(handle, orbitPosition(radius, period, t))

		left, right := engine.RenderNextBlock()

		for i := range left {
			pcm = append(pcm, toPCM16(left[i]), toPCM16(right[i]))
		}
	}

	if err := writeStereoWAV(out, sampleRate, pcm); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	stats := engine.Stats()
	log.Info("render complete", "file", out, "blocks", stats.Ticks, "underruns", stats.Underruns)

	return nil
}

// orbitPosition places the source on a clockwise horizontal circle,
// starting in front of the listener.
func orbitPosition(radius, period, t float64) spatial.Vec3 {
	theta := 2 * math.Pi * t / period

	return spatial.Vec3{
		X: radius * math.Cos(theta),
		Y: -radius * math.Sin(theta),
	}
}

func loadDataset(dir string) (*hrtf.Dataset, error) {
	if dir == "" {
		return hrtf.Synthetic(hrtf.DefaultSyntheticConfig())
	}

	cfg := hrtf.DefaultSyntheticConfig()

	return hrtf.LoadDir(dir, cfg.Grid)
}

func roomByName(name string) (*room.Model, error) {
	var preset room.Preset

	switch name {
	case "none":
		return nil, nil
	case "small":
		preset = room.PresetSmallRoom
	case "medium":
		preset = room.PresetMediumRoom
	case "hall":
		preset = room.PresetLargeHall
	default:
		return nil, fmt.Errorf("unknown room preset %q", name)
	}

	m := room.PresetModel(preset)

	return &m, nil
}

// sliceSource feeds a decoded sample slice to the engine and pads with
// silence past the end.
type sliceSource struct {
	samples []float64
	pos     int
}

func (s *sliceSource) ReadBlock(dst []float64) int {
	n := copy(dst, s.samples[s.pos:])
	s.pos += n

	return n
}

// decodeMono decodes an audio file to mono float64 samples by extension.
func decodeMono(path string) ([]float64, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".mp3":
		return decodeMP3(path)
	case ".ogg":
		return decodeOGG(path)
	default:
		return nil, 0, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
}

func decodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, errors.New("WAV has no channels")
	}

	scale := 1 / float64(int64(1)<<(buf.SourceBitDepth-1))

	return downmixInts(buf.Data, channels, scale), buf.Format.SampleRate, nil
}

func decodeMP3(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, 0, err
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	var samples []float64

	buf := make([]byte, 8192)

	for {
		n, err := dec.Read(buf)

		for i := 0; i+3 < n; i += 4 {
			l := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
			r := int16(uint16(buf[i+2]) | uint16(buf[i+3])<<8)
			samples = append(samples, (float64(l)+float64(r))/2/32768)
		}

		if err != nil {
			break
		}
	}

	return samples, dec.SampleRate(), nil
}

func decodeOGG(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	data, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}

	channels := format.Channels
	if channels < 1 {
		return nil, 0, errors.New("Ogg stream has no channels")
	}

	mono := make([]float64, 0, len(data)/channels)

	for i := 0; i+channels <= len(data); i += channels {
		sum := 0.0
		for c := range channels {
			sum += float64(data[i+c])
		}

		mono = append(mono, sum/float64(channels))
	}

	return mono, format.SampleRate, nil
}

// downmixInts averages interleaved integer frames into mono floats.
func downmixInts(data []int, channels int, scale float64) []float64 {
	frames := len(data) / channels
	mono := make([]float64, frames)

	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(data[i*channels+c])
		}

		mono[i] = sum / float64(channels) * scale
	}

	return mono
}

func toPCM16(v float64) int {
	scaled := math.Round(v * 32767)
	if scaled > 32767 {
		scaled = 32767
	}

	if scaled < -32768 {
		scaled = -32768
	}

	return int(scaled)
}

func writeStereoWAV(path string, sampleRate int, pcm []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           pcm,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}

	return enc.Close()
}
