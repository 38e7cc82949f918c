// Package capture turns a live input device into outbound audio frames and
// a smoothed loudness level, with an optional low-rate video sampler for
// camera and screen modes.
//
// Audio arrives from an audioio.Source in chunks of any size and is
// re-sliced into fixed blocks (4096 samples at 16 kHz by default). Each
// block is encoded for the wire and handed to the frame sink attached to
// the Handle; blocks produced while no sink is attached are dropped.
//
// The loudness level follows level = max(rms, previous*decay), giving a
// fast attack and a slow release.
package capture
