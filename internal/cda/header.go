package cda

import (
	"strings"
	"time"
)

// OID roots used by the health-checkup CDA profile (§4.H.1). Named the
// way the reference CCDA package names its template-id constants.
const (
	OIDInsurerNumber    = "1.2.392.200119.6.101"
	OIDInsuranceSymbol  = "1.2.392.200119.6.204"
	OIDInsuranceNumber  = "1.2.392.200119.6.205"
	OIDInsuranceBranch  = "1.2.392.200119.6.211"
	OIDFacilityCode     = "1.2.392.200119.6.102"
)

// DocumentID implements §4.G step 4's CDA-index policy. nullFlavor=true
// (with ok=true and an empty id) means id/@nullFlavor is set. ok=false means
// "neither root nor nullFlavor, or the id element itself is missing" —
// callers record this as ERROR but keep processing.
func DocumentID(root *Node) (id string, nullFlavor bool, ok bool) {
	idNode := root.Child("id")
	if idNode == nil {
		return "", false, false
	}
	if nf, present := idNode.Attr("nullFlavor"); present && nf != "" {
		return "", true, true
	}
	r, present := idNode.Attr("root")
	if !present || r == "" {
		return "", false, false
	}
	if ext, hasExt := idNode.Attr("extension"); hasExt && ext != "" {
		return r + "|" + ext, false, true
	}
	return r, false, true
}

// IDByRoot scans a patientRole (or any node)'s direct <id> children for one
// whose root attribute matches oid, returning its extension.
func IDByRoot(parent *Node, oid string) (string, bool) {
	for _, n := range parent.ChildrenNamed("id") {
		if r, _ := n.Attr("root"); r == oid {
			ext, _ := n.Attr("extension")
			return ext, true
		}
	}
	return "", false
}

// ParseHL7Date parses a YYYYMMDD (or longer HL7 timestamp with the date as
// its leading 8 digits) value attribute, returning ok=false on anything
// shorter or non-numeric rather than guessing.
func ParseHL7Date(value string) (time.Time, bool) {
	if len(value) < 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", value[:8])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// JoinAddressParts space-joins state + city + streetAddressLine, skipping
// empties, per §4.H.1.
func JoinAddressParts(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
