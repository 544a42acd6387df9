package domain

// Purpose is an application-level hint describing the workload a peer
// is selected for. The set is fixed; unknown tags are ignored by the
// pool so newer servers can hand out purposes this client predates.
type Purpose string

const (
	PurposeFeed       Purpose = "feed"
	PurposeUpload     Purpose = "upload"
	PurposeGovernance Purpose = "governance"
	PurposeWebRTC     Purpose = "webrtc"
)

// ParsePurpose maps a raw tag onto a known Purpose.
func ParsePurpose(tag string) (Purpose, bool) {
	switch Purpose(tag) {
	case PurposeFeed, PurposeUpload, PurposeGovernance, PurposeWebRTC:
		return Purpose(tag), true
	}
	return "", false
}
