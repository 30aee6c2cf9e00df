// Package models defines the record and envelope types shared between the
// licsync server and enforcement nodes.
package models

import "time"

// Domain identifies one of the two independently refreshed data sets.
type Domain string

const (
	// DomainDictionary holds per-user license and LOA grants derived from
	// the enrollment directory.
	DomainDictionary Domain = "dictionary"
	// DomainReference holds license/LOA/ECCN mappings with validity
	// windows derived from the reference feed.
	DomainReference Domain = "reference"
)

// Snapshot file names inside the transfer archive. They double as the
// snapshot file names in the server data directory.
const (
	DictionarySnapshotName = "dictionary-data"
	ReferenceSnapshotName  = "reference-data"
)

// SnapshotName returns the archive entry name for a domain.
func (d Domain) SnapshotName() string {
	if d == DomainReference {
		return ReferenceSnapshotName
	}
	return DictionarySnapshotName
}

// NullToken is the literal stored for an absent license or LOA in a
// reference record. Exactly one of the two may carry it.
const NullToken = "NULL"

// DictionaryRecord is a single user grant. Exactly one of Licenses or
// Loas is set; the other is omitted from the wire form.
type DictionaryRecord struct {
	UID      string `json:"UID"`
	Licenses string `json:"LICENSES,omitempty"`
	Loas     string `json:"LOAS,omitempty"`
}

// NewLicenseRecord returns a dictionary record granting a license.
func NewLicenseRecord(uid, license string) DictionaryRecord {
	return DictionaryRecord{UID: uid, Licenses: license}
}

// NewLoaRecord returns a dictionary record granting an LOA.
func NewLoaRecord(uid, loa string) DictionaryRecord {
	return DictionaryRecord{UID: uid, Loas: loa}
}

// IsLicense reports whether the record carries a license grant.
func (r DictionaryRecord) IsLicense() bool {
	return r.Licenses != "" && r.Loas == ""
}

// IsLoa reports whether the record carries an LOA grant.
func (r DictionaryRecord) IsLoa() bool {
	return r.Loas != "" && r.Licenses == ""
}

// ReferenceRecord maps a license and/or LOA to an export-control
// classification with a validity window. Dates are year-month-day
// strings. License or Loa may hold NullToken, never both.
type ReferenceRecord struct {
	License   string `json:"LICENSE"`
	Loa       string `json:"LOA"`
	Eccn      string `json:"ECCN"`
	Effective string `json:"EFFECTIVE"`
	Expiry    string `json:"EXPIRY"`
}

// Key returns the uniqueness key for duplicate detection within a run.
type ReferenceKey struct {
	License string
	Loa     string
	Eccn    string
}

// Key returns the (license, loa, eccn) triple identifying the record.
func (r ReferenceRecord) Key() ReferenceKey {
	return ReferenceKey{License: r.License, Loa: r.Loa, Eccn: r.Eccn}
}

// IncludedFlag is the YES/NO marker used in sync responses.
type IncludedFlag string

const (
	IncludedYes IncludedFlag = "YES"
	IncludedNo  IncludedFlag = "NO"
)

// FlagFor converts a bool into the wire flag.
func FlagFor(included bool) IncludedFlag {
	if included {
		return IncludedYes
	}
	return IncludedNo
}

// SyncRequest is the poll request sent by an enforcement node. A nil
// LastSyncTime means the node has never synced and is treated as epoch.
type SyncRequest struct {
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

// RequesterTime returns the request timestamp, defaulting to the Unix
// epoch when absent.
func (r SyncRequest) RequesterTime() time.Time {
	if r.LastSyncTime == nil {
		return time.Unix(0, 0).UTC()
	}
	return *r.LastSyncTime
}

// SyncResponse is the server's reply to a poll. With both flags NO the
// node is current and must not touch its cache or last-sync time.
type SyncResponse struct {
	DictionaryIncluded IncludedFlag `json:"dictionaryIncluded"`
	ReferenceIncluded  IncludedFlag `json:"referenceIncluded"`
	Payload            []byte       `json:"payload,omitempty"`
}

// HasUpdate reports whether either domain was included.
func (r SyncResponse) HasUpdate() bool {
	return r.DictionaryIncluded == IncludedYes || r.ReferenceIncluded == IncludedYes
}

// NoUpdate is the canonical empty response.
func NoUpdate() SyncResponse {
	return SyncResponse{DictionaryIncluded: IncludedNo, ReferenceIncluded: IncludedNo}
}
