// Package model implements the model registry and selection policy for
// promptmux.
//
// Core goals:
//   - Describe models uniformly across providers (capabilities, context
//     window, per-token cost) via Descriptor
//   - Load the registry from a pluggable RegistrySource (YAML file source
//     included) with a built-in default set as fallback, so the system is
//     never left with zero models
//   - Answer "which model fits these requirements" through FindBestModel's
//     documented filter and sort order
//
// The registry holds metadata only. Actually talking to a provider is the
// platform package's concern; agents combine both by looking up descriptors
// for the models their capability reports using.
package model
