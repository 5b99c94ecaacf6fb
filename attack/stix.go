package attack

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
)

// ExternalReference is an entry of a STIX object's external_references.
type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// KillChainPhase is an entry of a STIX object's kill_chain_phases.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// Object is the subset of a STIX object the index reads.
// Objects of every type decode into it; only attack-patterns are indexed.
type Object struct {
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Description        *string             `json:"description,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
	KillChainPhases    []KillChainPhase    `json:"kill_chain_phases,omitempty"`
	Deprecated         bool                `json:"x_mitre_deprecated,omitempty"`
	Subtechnique       bool                `json:"x_mitre_is_subtechnique,omitempty"`
	Revoked            bool                `json:"revoked,omitempty"`
}

type bundle struct {
	Objects []json.RawMessage `json:"objects"`
}

// Decode reads a dataset: either a STIX bundle ({"objects": [...]}) or a bare
// JSON array of objects. Items that fail to decode are skipped and logged.
func Decode(r io.Reader) ([]Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewInvalidDatasetError(err, "failed to read dataset")
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewInvalidDatasetError(io.ErrUnexpectedEOF, "empty dataset")
	}

	var raw []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.NewInvalidDatasetError(err, "failed to decode object array")
		}
	} else {
		var b bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, errors.NewInvalidDatasetError(err, "failed to decode STIX bundle")
		}
		raw = b.Objects
	}

	objects := make([]Object, 0, len(raw))
	skipped := 0
	for i, item := range raw {
		var obj Object
		if err := json.Unmarshal(item, &obj); err != nil {
			skipped++
			logger.Debugw("Skipping undecodable dataset item", "position", i, logger.FieldError, err)
			continue
		}
		objects = append(objects, obj)
	}
	if skipped > 0 {
		logger.Warnw("Dataset contained undecodable items", "skipped", skipped, logger.FieldCount, len(objects))
	}

	return objects, nil
}

// Load decodes a dataset and builds its index.
func Load(r io.Reader) (*Index, error) {
	objects, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Build(objects), nil
}

// LoadFile opens path and builds its index.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to open dataset %s", path),
			"download enterprise-attack.json from the mitre/cti repository and set dataset.path",
		)
	}
	defer f.Close()

	idx, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load dataset %s", path)
	}

	logger.Infow("Loaded ATT&CK dataset",
		logger.FieldFile, path,
		logger.FieldCount, idx.Len(),
		"active", len(idx.Active()),
		"revoked", len(idx.Revoked()),
	)
	return idx, nil
}
