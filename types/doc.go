// Package types provides core types used across the expoflow service.
// This package has ZERO dependencies on other expoflow packages to avoid
// circular imports. All other packages should import types from here.
package types
