package entity

import "strings"

type Namespace string

const (
	NamespaceOriginals   Namespace = "originals"
	NamespaceDerivatives Namespace = "derivatives"
)

// DerivativeExt is the extension of every derivative object; derivation
// always encodes to ContentTypeJPEG regardless of the original's format.
const DerivativeExt = ".jpg"

// DerivativeName maps an original's display name to the name its derivative
// is stored under, normalizing any extension to the fixed output format.
func DerivativeName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	return name + DerivativeExt
}

// StripExt resolves a display name (`<id>.<ext>`) back to the object id.
// An input without an extension is already an id.
func StripExt(idOrName string) string {
	if i := strings.LastIndexByte(idOrName, '.'); i > 0 {
		return idOrName[:i]
	}

	return idOrName
}
