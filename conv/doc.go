// Package conv implements the per-object binaural convolution engine.
//
// A Partitioned convolver applies one impulse response to a stream of
// fixed-size blocks using uniformly partitioned overlap-save convolution:
// the IR is split into block-sized segments transformed once, and each
// input block contributes one spectrum to a frequency-domain delay line,
// so the per-block cost stays bounded regardless of IR length. Replacing
// the IR crossfades between the old-IR and new-IR results with an
// equal-power curve to avoid audible discontinuities.
//
// A Binaural convolver pairs two Partitioned instances with per-ear
// fractional delays and gains, realizing interaural time and level
// differences on top of the spectral cues carried by the responses.
package conv
