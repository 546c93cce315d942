// Package physics provides the models whose steady states are solved for.
//
// Each model implements [dynamo.System] with a scalar bifurcation parameter
// and most supply their Jacobian and parameter derivative analytically:
//
//   - [SeaIce]: energy balance of Arctic surface temperature with an
//     ice-albedo feedback, forced by an extra flux ΔF
//   - [Fold], [Transcritical], [Pitchfork]: one-dimensional normal forms
//   - [Hysteresis]: S-shaped branch with a pair of folds
//   - [DoubleWell]: damped particle in a bistable potential under a
//     constant force
//   - [VanDerPol]: Hopf bifurcation of the origin, swept in μ
//   - [Lorenz]: pitchfork of the origin, swept in rho
//
// Models with physical constants implement [dynamo.Configurable] so their constants can be set
// from configuration files.
package physics
