package osm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NSInstance is the subset of an NBI ns_instances record the reconciler needs.
type NSInstance struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	NSState string  `json:"nsState,omitempty"`
	Admin   NSAdmin `json:"_admin"`
}

// NSAdmin holds the _admin block of an NS instance.
type NSAdmin struct {
	ProjectsRead []string   `json:"projects_read"`
	Deployed     NSDeployed `json:"deployed"`
}

// NSDeployed holds deployment references of an NS instance.
type NSDeployed struct {
	RO struct {
		NsrID string `json:"nsr_id"`
	} `json:"RO"`
}

// ROInstanceID returns the id the resource orchestrator knows the NS by.
func (ns *NSInstance) ROInstanceID() string {
	return ns.Admin.Deployed.RO.NsrID
}

// Project returns the first project with read access, or "" when none is listed.
func (ns *NSInstance) Project() string {
	if len(ns.Admin.ProjectsRead) == 0 {
		return ""
	}
	return ns.Admin.ProjectsRead[0]
}

// VNFInstance is a VNF record from the NBI.
type VNFInstance struct {
	ID                string      `json:"id"`
	VnfdRef           string      `json:"vnfd-ref"`
	VnfdID            string      `json:"vnfd-id"`
	MemberVnfIndexRef string      `json:"member-vnf-index-ref"`
	NsrIDRef          string      `json:"nsr-id-ref,omitempty"`
	Vdur              []VDURecord `json:"vdur"`
}

// Name returns the accounting name of the VNF: "<vnfd-ref>.<member-vnf-index-ref>".
func (v *VNFInstance) Name() string {
	return v.VnfdRef + "." + v.MemberVnfIndexRef
}

// VimIDs returns the VIM ids of every deployed unit of the VNF.
func (v *VNFInstance) VimIDs() []string {
	ids := make([]string, 0, len(v.Vdur))
	for _, r := range v.Vdur {
		if r.VimID != "" {
			ids = append(ids, r.VimID)
		}
	}
	return ids
}

// VDURecord is one deployed unit of a VNF.
type VDURecord struct {
	VimID    string `json:"vim-id"`
	VduIDRef string `json:"vdu-id-ref,omitempty"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
}

// VIMAccount is a VIM account record.
type VIMAccount struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	VimType string `json:"vim_type"`
	VimURL  string `json:"vim_url,omitempty"`
}

// VNFPackage is the descriptor of a VNF package.
type VNFPackage struct {
	ID  string          `json:"_id"`
	Vdu []VNFPackageVDU `json:"vdu"`
}

// VNFPackageVDU is a VDU entry of a VNF descriptor.
type VNFPackageVDU struct {
	ID       string    `json:"id"`
	VMFlavor *VMFlavor `json:"vm-flavor,omitempty"`
}

// VMFlavor is the sizing of a VDU.
type VMFlavor struct {
	VCPUCount Quantity `json:"vcpu-count"`
	MemoryMB  Quantity `json:"memory-mb"`
	StorageGB Quantity `json:"storage-gb"`
}

// Label renders the flavor as "vcpu_ram_disk".
func (f VMFlavor) Label() string {
	return fmt.Sprintf("%d_%d_%d", f.VCPUCount, f.MemoryMB, f.StorageGB)
}

// Flavor returns the flavor of the first VDU of the package.
// Descriptors with more than one VDU are sized by the first one.
func (p *VNFPackage) Flavor() (VMFlavor, bool) {
	if len(p.Vdu) == 0 || p.Vdu[0].VMFlavor == nil {
		return VMFlavor{}, false
	}
	return *p.Vdu[0].VMFlavor, true
}

// Quantity is an integer descriptor field that OSM may encode as a number or a string.
type Quantity int

// UnmarshalJSON accepts 2, 2.0 and "2".
func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*q = Quantity(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return fmt.Errorf("invalid quantity %q", s)
	}
	*q = Quantity(int(f))
	return nil
}

// ROTenant is an OpenMANO tenant.
type ROTenant struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}
