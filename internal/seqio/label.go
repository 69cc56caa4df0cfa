package seqio

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// Label is a decoded engine sequence label.
type Label struct {
	Raw         string
	Base        string
	Size        int64
	Annotations map[string]string
}

// ParseLabel splits an engine label into its base name and ";key=value;"
// annotations. A missing or malformed size leaves Size at zero.
func ParseLabel(raw string) Label {
	label := Label{Raw: raw}
	parts := strings.Split(raw, ";")
	label.Base = parts[0]
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		if label.Annotations == nil {
			label.Annotations = make(map[string]string, len(parts)-1)
		}
		label.Annotations[key] = value
		if key == "size" {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
				label.Size = n
			}
		}
	}
	return label
}

// Chimera reports whether the engine marked the sequence as chimeric.
func (l Label) Chimera() bool {
	return l.Annotations["amptype"] == "chimera"
}

// HashID returns the content identifier of a sequence: the lowercase hex MD5
// of its upper-cased residues.
func HashID(sequence string) string {
	sum := md5.Sum([]byte(strings.ToUpper(sequence)))
	return hex.EncodeToString(sum[:])
}

// SampleOfRead returns the sample part of a pooled read label "<sample>.<n>".
func SampleOfRead(label string) (string, bool) {
	if idx := strings.IndexAny(label, " \t;"); idx >= 0 {
		label = label[:idx]
	}
	sample, _, ok := strings.Cut(label, ".")
	if !ok || sample == "" {
		return "", false
	}
	return sample, true
}
