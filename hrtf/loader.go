package hrtf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// Loader errors.
var (
	ErrNotStereo = errors.New("hrtf: measurement file is not stereo")
)

// LoadDir reads a dataset from a directory of stereo WAV measurements,
// one file per grid direction. The left channel holds the left-ear
// response. Files are named az<AAA>_el<SEE>.wav, where AAA is the
// zero-padded azimuth in degrees and SEE the sign-prefixed elevation,
// e.g. az090_el+00.wav or az270_el-20.wav.
//
// All files must be present and share one sample count; the common length
// becomes the dataset's IR length.
func LoadDir(dir string, grid Grid) (*Dataset, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	nAz := grid.AzimuthCount()
	nEl := grid.ElevationCount()
	pairs := make([]Pair, 0, nAz*nEl)

	for ei := range nEl {
		el := grid.ElevationMin + float64(ei)*grid.ElevationStep

		for ai := range nAz {
			az := float64(ai) * grid.AzimuthStep

			path := filepath.Join(dir, MeasurementFileName(az, el))

			pair, err := loadPair(path)
			if err != nil {
				return nil, fmt.Errorf("hrtf: load %s: %w", path, err)
			}

			pairs = append(pairs, pair)
		}
	}

	return New(grid, pairs)
}

// MeasurementFileName returns the canonical file name for a grid
// direction.
func MeasurementFileName(azimuthDeg, elevationDeg float64) string {
	return fmt.Sprintf("az%03d_el%+03d.wav", int(math.Round(azimuthDeg)), int(math.Round(elevationDeg)))
}

// loadPair decodes one stereo measurement file.
func loadPair(path string) (Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pair{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Pair{}, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Pair{}, err
	}

	if buf.Format == nil || buf.Format.NumChannels != 2 {
		return Pair{}, ErrNotStereo
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(buf.Data) / 2

	pair := Pair{
		Left:  make([]float64, frames),
		Right: make([]float64, frames),
	}

	for i := range frames {
		pair.Left[i] = float64(buf.Data[2*i]) * scale
		pair.Right[i] = float64(buf.Data[2*i+1]) * scale
	}

	return pair, nil
}
