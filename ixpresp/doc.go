/*
Command ixpresp looks up IXPE instrument response at pulse invariant channels.

  Usage: ixpresp [options] <channel>...
    -r="": CalDB root directory
    -d="d1": detector unit, d1, d2, or d3
    -caldb="20170101": CalDB version
    -recon="alpha075_02": event reconstruction version
    -v=false: display version and copyright

The response files are read from the directory the CalDB tarball was
unpacked into,

  <root>/data/ixpe/gpd/cpf/rmf/ixpe_<det>_<caldb>_<recon>.rmf
  <root>/data/ixpe/gpd/cpf/arf/ixpe_<det>_<caldb>_<recon>.arf
  <root>/data/ixpe/gpd/cpf/modfact/ixpe_<det>_<caldb>_mfact_<recon>.fits

For each channel, ixpresp prints the energy at the center of the channel's
energy bin, the effective area, and the modulation factor at that energy.
Energies must match a bin of the ancillary response and modulation factor
tables exactly.  Channels not in the response matrix are all listed in a
single error message.

-------------
Public domain.
*/
package main
