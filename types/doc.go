// Package types provides the core domain types of the roundtable system.
// This package has ZERO dependencies on other roundtable packages to avoid
// circular imports. All other packages should import types from here.
package types
