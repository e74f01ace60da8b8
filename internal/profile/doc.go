// Package profile classifies Fluidra devices and resolves their
// capability profiles.
//
// The vendor API does not announce what a device is in any reliable
// field: identifiers, display names, family and model strings all vary
// between firmware generations and are sometimes missing entirely. The
// registry therefore scores every known profile against all the
// identifying strings a device carries, using case-insensitive wildcard
// patterns, and picks the best match.
//
// One in-band signal outranks everything else: some families report a
// definitive marker string in component 7 (for example "BXWAA" on the
// eco-elyo heat pump). When present, that signature adds a bonus large
// enough to override any combination of string matches, because it
// comes from the device itself rather than from user-editable metadata.
//
// Classification is deterministic: profiles are evaluated in a fixed
// order (priority, then name) and a candidate replaces the best match
// only on a strictly higher score, so insertion order never matters.
//
// Devices that score below the confidence threshold fall back to a
// generic profile keyed on the coarse device-type hint; devices that
// cannot be classified at all — including bridge aggregators, which
// have no direct control surface — resolve to no profile, and callers
// must treat them as unsupported.
package profile
