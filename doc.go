/*
Command crabpol makes Stokes I, Q, U polarization maps of the Crab Nebula
(Tau-A) from Planck time-ordered data.

Contents

  Program overview
  Command line usage
  Configuration
  File formats
  Algorithm outline


Program overview

Input is a tree of per-detector time-ordered data (TOD) files for the
frequency channels of one instrument, LFI or HFI.  Output is one map file
and one hits file per frequency channel.

Maps are made one of two ways.  A grid map is a small flat map on the
tangent plane at a target coordinate, by default Tau-A.  A HEALPix map
covers the whole sky at a given nside.

Sample run:

  crabpol -sim sim
  crabpol -p sim -o maps -f 100,143 -db maps.db

The first command writes a synthetic data tree with a polarized source at
Tau-A.  The second makes 80 by 80 pixel grid maps of it at 100 and 143 GHz,
writing

  maps/100GHz_80pix_grid.fits
  maps/hits_100GHz_80pix_grid.fits
  maps/143GHz_80pix_grid.fits
  maps/hits_143GHz_80pix_grid.fits

and recording the four files in the SQLite catalog maps.db.


Command line usage

  crabpol [options]          make maps
  crabpol -sim <dir>         write a synthetic data tree
  crabpol -v                 display version and copyright

Options:

  -c <config-file>           YAML configuration
  -p <path>                  data path
  -o <dir>                   output directory
  -f <freq>[,<freq>...]      frequencies, GHz
  -mode grid|healpix         binning, default grid
  -db <catalog-file>         record maps in an SQLite catalog

Command line options override the configuration file.


Configuration

The configuration file is YAML.  All keys are optional except data_path,
which may be given with -p instead.

  instrument: HFI               # or LFI
  frequencies: [100, 143]       # default all of the instrument
  data_path: /data/npipe
  output_dir: maps
  catalog: maps.db              # SQLite catalog of maps written
  coord: [184.5574, -5.7843]    # target lon, lat in degrees, default Tau-A
  coord_system: galactic        # or equatorial
  nside: 2048                   # HEALPix maps
  npix: 80                      # grid maps
  pixel_size: 1.5               # grid pixel, arc minutes
  alpha: -0.28                  # spectral index naming the color table
  color_correction: false
  background_subtraction: false
  background: {100: 0.0012}     # K_CMB per frequency, overrides built in values
  split: hr1                    # data split, default full mission
  on_missing: abort             # or skip, for missing detector files
  workers: 0                    # grid solver goroutines, 0 for all CPUs
  log_level: info

Background subtraction needs a flux for every selected frequency.  None is
built in for HFI 545 and 857 GHz.

Each key may also be set with an environment variable, the key upper cased
and prefixed with CRABPOL_, for example CRABPOL_NPIX=120.  Environment
variables override the file.

Instruments have these frequency channels:

  LFI  30, 44, 70
  HFI  100, 143, 217, 353, 545, 857


File formats

TOD files are FITS binary tables in extension 1 with columns theta, phi,
qweight, uweight, and signal.  Theta and phi are galactic colatitude and
longitude in radians.  A detector's file is

  <data_path>/M1/<freq>GHz/<detector>.fits

or <detector>_<split>.fits for a data split.

The color correction table is ASCII,

  <data_path>/PR2-3/<instrument>_UC_CC_RIMO-4_alpha<alpha>.txt

with a header line naming columns Detector-name and UCxCC.  Lines starting
with # are comments.

Grid maps are FITS images of 3 planes, I, Q, and U, of npix rows of npix
columns.  Rows increase in latitude, columns in longitude.  HEALPix maps are
FITS binary tables with columns I_STOKES, Q_STOKES, and U_STOKES in nested
pixel order.  HEALPix maps are not normalized; they hold sums of
signal times weight, and the hits file holds sample counts.


Algorithm outline

1.  For each detector of a frequency channel, samples are read and
calibrated.  Background subtraction, when enabled, subtracts the channel
background flux.  Color correction, when enabled, then multiplies by the
detector factor.

2.  Each sample has polarization weights (1, qweight, uweight).  The signal
is modeled as I + qweight·Q + uweight·U.

3.  For HEALPix maps, signal times weights and hits are summed per pixel.

4.  For grid maps, samples are projected onto the tangent plane at the
target.  Each grid cell holds samples with x and y in half-open intervals
[lo, hi).  In each cell the normal equations of the weighted least squares
problem are solved with a pseudo-inverse, which gives the minimum norm
solution where polarization angles do not constrain Q and U.  Cells with no
samples are zero.  A cell with non-finite data is zeroed and logged.

-------------
Public domain.
*/
package main
