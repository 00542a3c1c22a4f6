package domain

import "testing"

func TestAttribute_Names(t *testing.T) {
	set := AttrCommonName | AttrDNSName

	if got := set.String(); got != "COMMON_NAME,DNS_NAME" {
		t.Errorf("want COMMON_NAME,DNS_NAME, got %s", got)
	}
	if !set.Has(AttrDNSName) || set.Has(AttrUPN) {
		t.Errorf("unexpected membership for %s", set)
	}
	if !set.Has(AttrCommonName | AttrDNSName) {
		t.Error("want combined membership")
	}
}

func TestParseAttribute(t *testing.T) {
	attr, ok := ParseAttribute(" subject_dn_from_directory ")
	if !ok || attr != AttrSubjectDNFromDirectory {
		t.Errorf("want SUBJECT_DN_FROM_DIRECTORY, got %v %v", attr, ok)
	}
	if _, ok := ParseAttribute("SURNAME"); ok {
		t.Error("want unknown attribute rejected")
	}
}

func TestDefaultTemplates_UniqueNamesAndIndexes(t *testing.T) {
	names := make(map[string]bool)
	indexes := make(map[int]bool)
	for _, tmpl := range DefaultTemplates() {
		if names[tmpl.Name] || indexes[tmpl.Index] {
			t.Errorf("duplicate template %s/%d", tmpl.Name, tmpl.Index)
		}
		names[tmpl.Name] = true
		indexes[tmpl.Index] = true
		if tmpl.ValidityDays <= 0 {
			t.Errorf("template %s has no validity", tmpl.Name)
		}
	}
	if len(names) != 5 {
		t.Errorf("want 5 templates, got %d", len(names))
	}
}

func TestEnrollmentRequest_Bind(t *testing.T) {
	req := &EnrollmentRequest{TemplateName: "Machine", AltNames: AltNames{GUID: "g", DNSName: "d"}}

	signReq := req.Bind("Autoenrolled-ws01-Machine", "Ab3dEf6h")

	if signReq.Username != "Autoenrolled-ws01-Machine" || signReq.Credential != "Ab3dEf6h" {
		t.Errorf("unexpected sign request %+v", signReq)
	}
	if req.AltNames.Slot(0) != "g" || req.AltNames.Slot(1) != "d" || req.AltNames.Slot(2) != "" {
		t.Errorf("unexpected slots %+v", req.AltNames)
	}
}
