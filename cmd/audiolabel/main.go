// Command audiolabel is the batch collaborator around the core pipelines:
// it decodes a WAV file, renders its mel spectrogram to a PNG, and applies
// mask intervals from a JSON file to produce a silenced copy of the audio.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/faiface/beep"
	beepwav "github.com/faiface/beep/wav"
	dspwav "github.com/mjibson/go-dsp/wav"

	"github.com/asankah/audio-labeller/audio"
	"github.com/asankah/audio-labeller/dsp/reconstruct"
	"github.com/asankah/audio-labeller/dsp/spectral"
	"github.com/asankah/audio-labeller/logging"
	"github.com/asankah/audio-labeller/mask"
)

func main() {
	var (
		inPath   = flag.String("in", "", "input WAV file")
		pngPath  = flag.String("png", "", "write mel spectrogram PNG to this path")
		maskPath = flag.String("masks", "", "JSON file with mask intervals")
		outPath  = flag.String("out", "", "write masked reconstruction WAV to this path")
		window   = flag.Int("window", 2048, "FFT window size (power of two)")
		hop      = flag.Int("hop", 512, "hop size between frames")
		mels     = flag.Int("mels", 128, "number of mel bins")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	logger := logging.NewDefaultLogger()
	if *verbose {
		logger.SetLevel(logging.DebugLevel)
	}
	logging.SetGlobalLogger(logger)

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	sig, err := loadWav(*inPath)
	if err != nil {
		logger.Fatal(err, "failed to load input", logging.Fields{"path": *inPath})
	}
	logger.Info("loaded input", logging.Fields{
		"path":        *inPath,
		"samples":     sig.Len(),
		"sample_rate": sig.SampleRate,
		"duration_s":  sig.DurationSeconds(),
	})

	if *pngPath != "" {
		builder, err := spectral.NewBuilder(spectral.SpectrogramParams{
			WindowSize: *window,
			HopSize:    *hop,
			MelBins:    *mels,
		})
		if err != nil {
			logger.Fatal(err, "invalid spectrogram configuration")
		}

		spec, err := builder.Compute(sig)
		if err != nil {
			logger.Fatal(err, "spectrogram computation failed")
		}

		if err := writeSpectrogramPNG(*pngPath, spec); err != nil {
			logger.Fatal(err, "failed to write spectrogram", logging.Fields{"path": *pngPath})
		}
		logger.Info("wrote spectrogram", logging.Fields{
			"path":   *pngPath,
			"frames": spec.NumFrames,
			"bins":   spec.MelBins,
		})
	}

	if *outPath != "" {
		masks, err := loadMasks(*maskPath)
		if err != nil {
			logger.Fatal(err, "failed to load masks", logging.Fields{"path": *maskPath})
		}

		rec, err := reconstruct.NewReconstructor(reconstruct.Params{
			WindowSize: *window,
			HopSize:    *hop,
		})
		if err != nil {
			logger.Fatal(err, "invalid reconstruction configuration")
		}

		result, err := rec.Process(sig, masks)
		if err != nil {
			logger.Fatal(err, "reconstruction failed")
		}

		if err := writeWav(*outPath, result); err != nil {
			logger.Fatal(err, "failed to write output", logging.Fields{"path": *outPath})
		}
		logger.Info("wrote masked audio", logging.Fields{
			"path":  *outPath,
			"masks": len(masks),
		})
	}
}

// loadWav decodes a WAV file and downmixes it to a mono signal
func loadWav(path string) (*audio.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w, err := dspwav.New(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	var samples []float64
	for {
		chunk, err := w.ReadFloats(4096)
		for _, v := range chunk {
			samples = append(samples, float64(v))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(chunk) == 0 {
			break
		}
	}

	return audio.FromInterleaved(samples, int(w.NumChannels), int(w.SampleRate)), nil
}

// loadMasks reads a JSON array of mask intervals. An empty path means no
// masking, which reproduces the input.
func loadMasks(path string) (mask.List, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var masks mask.List
	if err := json.Unmarshal(data, &masks); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return masks, nil
}

// writeSpectrogramPNG renders the spectrogram as a grayscale image, one
// column per frame, low frequencies at the bottom
func writeSpectrogramPNG(path string, spec *spectral.Spectrogram) error {
	if spec.NumFrames == 0 {
		return fmt.Errorf("empty spectrogram, nothing to render")
	}

	lo, hi := spec.MinMax()
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewGray(image.Rect(0, 0, spec.NumFrames, spec.MelBins))
	for x := 0; x < spec.NumFrames; x++ {
		row := spec.Row(x)
		for m, v := range row {
			level := uint8(255 * (v - lo) / span)
			img.SetGray(x, spec.MelBins-1-m, color.Gray{Y: level})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}

// signalStreamer adapts an audio.Signal to beep's streamer interface
type signalStreamer struct {
	samples []float64
	pos     int
}

func (s *signalStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}

	n := 0
	for i := range samples {
		if s.pos >= len(s.samples) {
			break
		}
		v := s.samples[s.pos]
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
		n++
	}

	return n, true
}

func (s *signalStreamer) Err() error {
	return nil
}

// writeWav encodes the signal as a 16-bit mono WAV file using beep
func writeWav(path string, sig *audio.Signal) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	format := beep.Format{
		SampleRate:  beep.SampleRate(sig.SampleRate),
		NumChannels: 1,
		Precision:   2,
	}

	return beepwav.Encode(f, &signalStreamer{samples: sig.Samples}, format)
}
