package billing

import (
	"fmt"
	"strings"
)

// Kind identifies the entity a billing session is held for.
type Kind string

// Session kinds.
const (
	KindNS  Kind = "ns"
	KindVNF Kind = "vnf"
	KindVDU Kind = "vdu"
)

// VDU types reported to the billing backend.
const (
	VDUTypeFaaS  = "FAAS_VNF"
	VDUTypePlain = "PLAIN_VNF"
)

type kindSpec struct {
	openPath  string
	closePath string
}

var kindSpecs = map[Kind]kindSpec{
	KindNS:  {openPath: "/openNsSession", closePath: "/closeNsSession"},
	KindVNF: {openPath: "/openVnfSession", closePath: "/closeVnfSession"},
	KindVDU: {openPath: "/openVduSession", closePath: "/closeVduSession"},
}

func lookupKind(k Kind) (kindSpec, error) {
	spec, ok := kindSpecs[k]
	if !ok {
		return kindSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return spec, nil
}

// Attributes are the fields needed to open a session of one kind.
type Attributes interface {
	Kind() Kind
	payload(timestampSec float64) any
}

// NSAttributes open a network service session.
type NSAttributes struct {
	NsID          string
	NsName        string
	CatalogTenant string
	CatalogUser   string
	ManoID        string
	ManoProject   string
	ManoUser      string
	NfvipopID     string
}

// Kind implements Attributes.
func (NSAttributes) Kind() Kind { return KindNS }

func (a NSAttributes) payload(ts float64) any {
	return struct {
		TimestampSec  float64 `json:"timestamp_sec"`
		CatalogTenant string  `json:"catalog_tenant"`
		CatalogUser   string  `json:"catalog_user"`
		ManoID        string  `json:"mano_id"`
		ManoProject   string  `json:"mano_project"`
		ManoUser      string  `json:"mano_user"`
		NfvipopID     string  `json:"nfvipop_id"`
		NsID          string  `json:"ns_id"`
		NsName        string  `json:"ns_name"`
	}{ts, a.CatalogTenant, a.CatalogUser, a.ManoID, a.ManoProject, a.ManoUser, a.NfvipopID, a.NsID, a.NsName}
}

// VNFAttributes open a VNF session under an NS session.
type VNFAttributes struct {
	NsSessionID int64
	VnfID       string
	VnfName     string
}

// Kind implements Attributes.
func (VNFAttributes) Kind() Kind { return KindVNF }

func (a VNFAttributes) payload(ts float64) any {
	return struct {
		TimestampSec float64 `json:"timestamp_sec"`
		NsSessionID  int64   `json:"ns_session_id"`
		VnfID        string  `json:"vnf_id"`
		VnfName      string  `json:"vnf_name"`
	}{ts, a.NsSessionID, a.VnfID, a.VnfName}
}

// VDUAttributes open a VDU session under a VNF session.
type VDUAttributes struct {
	VnfSessionID int64
	VduID        string
	NfvipopID    string
	VCPU         int
	MemoryMB     int
	DiskGB       int
}

// Kind implements Attributes.
func (VDUAttributes) Kind() Kind { return KindVDU }

func (a VDUAttributes) payload(ts float64) any {
	return struct {
		TimestampSec   float64 `json:"timestamp_sec"`
		FlavorCPUCount int     `json:"flavorCpuCount"`
		FlavorDiskGB   int     `json:"flavorDiskGb"`
		FlavorMemoryMB int     `json:"flavorMemoryMb"`
		NfvipopID      string  `json:"nfvipop_id"`
		VduID          string  `json:"vdu_id"`
		VduType        string  `json:"vdu_type"`
		VnfSessionID   int64   `json:"vnf_session_id"`
	}{ts, a.VCPU, a.DiskGB, a.MemoryMB, a.NfvipopID, a.VduID, VDUType(a.NfvipopID), a.VnfSessionID}
}

// VDUType classifies a VDU by the NFVI point of presence it runs on.
func VDUType(nfvipopID string) string {
	if strings.Contains(strings.ToLower(nfvipopID), "faas") {
		return VDUTypeFaaS
	}
	return VDUTypePlain
}
