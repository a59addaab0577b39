package record

import (
	"time"
)

// Detection represents one extension-versus-content mismatch together
// with the forensic context a SIEM needs. Optional fields stay empty
// when their capability is disabled or fails; a partial record is
// still valid and still emitted.
type Detection struct {
	FilePath         string    `json:"filepath"`
	FileName         string    `json:"filename"`
	ClaimedExtension string    `json:"claimed_extension"`
	ActualType       string    `json:"actual_type"`
	SizeBytes        int64     `json:"file_size_bytes"`
	SHA256           string    `json:"file_hash_sha256,omitempty"`
	XXH64            string    `json:"file_hash_xxh64,omitempty"`
	Owner            string    `json:"file_owner"`
	HeaderHex        string    `json:"magic_number_hex"`
	DetectedAt       time.Time `json:"detection_time"`
	Hostname         string    `json:"hostname"`
}

// Map renders the record as the data payload of a SIEM event.
func (d Detection) Map() map[string]interface{} {
	m := map[string]interface{}{
		"filepath":          d.FilePath,
		"filename":          d.FileName,
		"claimed_extension": d.ClaimedExtension,
		"actual_type":       d.ActualType,
		"file_size_bytes":   d.SizeBytes,
		"file_owner":        d.Owner,
		"magic_number_hex":  d.HeaderHex,
		"detection_time":    d.DetectedAt.Format(time.RFC3339Nano),
		"hostname":          d.Hostname,
	}
	if d.SHA256 != "" {
		m["file_hash_sha256"] = d.SHA256
	}
	if d.XXH64 != "" {
		m["file_hash_xxh64"] = d.XXH64
	}
	return m
}
