// Package gridding converts polar radar moments to precipitation rate and maps
// them onto the square Cartesian grid shared by the rate cache and products.
//
// Gates are placed with the 4/3 effective earth radius model relative to the
// radar site, which sits at the centre of the grid. Each gate contributes to
// every grid point within its distance-dependent radius of influence
//
//	roi = hz·z/20 + hypot(hy·y, hx·x)·tan(beamwidth·spacing),  roi ≥ min radius
//
// with weight exp(-d²/(roi²/4)) + 1e-5. Grid points reached by no gate are NaN.
package gridding
