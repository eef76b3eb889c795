package site

import (
	"reflect"
	"strings"
	"testing"
)

func TestValidate_DefaultsScheme(t *testing.T) {
	r := GenerationRequest{BusinessDescription: "  bakery  ", SelectedFeatures: []string{"About", "about", " "}}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.ColorScheme != SchemeLight {
		t.Errorf("ColorScheme = %q, want light", r.ColorScheme)
	}
	if r.BusinessDescription != "bakery" {
		t.Errorf("BusinessDescription = %q, want trimmed", r.BusinessDescription)
	}
	if !reflect.DeepEqual(r.SelectedFeatures, []string{"about"}) {
		t.Errorf("SelectedFeatures = %v, want [about]", r.SelectedFeatures)
	}
}

func TestValidate_Rejects(t *testing.T) {
	empty := GenerationRequest{}
	if err := empty.Validate(); err != ErrEmptyRequest {
		t.Errorf("empty request error = %v, want ErrEmptyRequest", err)
	}
	bad := GenerationRequest{WebsiteType: "Blog", ColorScheme: "purple"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown color scheme")
	}
}

func TestBrandNameAndEmail(t *testing.T) {
	r := GenerationRequest{BusinessDescription: "family Italian restaurant in Rome"}
	if got := r.BrandName(); got != "Family Italian Restaurant" {
		t.Errorf("BrandName = %q", got)
	}
	if got := r.ContactEmail(); got != "hello@familyitalianrestaurant.com" {
		t.Errorf("ContactEmail = %q", got)
	}
	r.UserEmail = "owner@example.com"
	if got := r.ContactEmail(); got != "owner@example.com" {
		t.Errorf("ContactEmail with user email = %q", got)
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"header", "about-us", "section2"} {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", "../etc", "Header", "a b", "-x", "hero.html"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestEnforcePlan_InsertsMandatory(t *testing.T) {
	got := EnforcePlan([]string{"about-us"}, 5)
	want := []string{"header", "hero", "about-us", "footer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnforcePlan = %v, want %v", got, want)
	}
}

func TestEnforcePlan_KeepsFooterPosition(t *testing.T) {
	got := EnforcePlan([]string{"header", "hero", "footer", "about-us"}, 5)
	want := []string{"header", "hero", "footer", "about-us"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnforcePlan = %v, want %v", got, want)
	}
}

func TestEnforcePlan_DedupesAndDropsInvalid(t *testing.T) {
	got := EnforcePlan([]string{"hero", "Services", "services", "../x", "header"}, 5)
	want := []string{"header", "hero", "services", "footer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnforcePlan = %v, want %v", got, want)
	}
}

func TestEnforcePlan_Caps(t *testing.T) {
	got := EnforcePlan([]string{"about-us", "services", "gallery", "footer", "pricing", "testimonials"}, 5)
	want := []string{"header", "hero", "about-us", "services", "footer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnforcePlan = %v, want %v", got, want)
	}
	if got := EnforcePlan([]string{"about-us"}, 1); len(got) != 3 {
		t.Errorf("EnforcePlan with max 1 = %v, want the three mandatory components", got)
	}
}

func TestRenderOrder(t *testing.T) {
	got := RenderOrder([]string{"footer", "custom", "about-us", "hero", "header"})
	want := []string{"header", "hero", "about-us", "custom", "footer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RenderOrder = %v, want %v", got, want)
	}
}

func TestFeatureComponent(t *testing.T) {
	if id, ok := FeatureComponent("Contact"); !ok || id != ContactForm {
		t.Errorf("FeatureComponent(Contact) = %q, %v", id, ok)
	}
	if _, ok := FeatureComponent("blog"); ok {
		t.Error("FeatureComponent(blog) should not map")
	}
}

func TestGuideline_Unknown(t *testing.T) {
	if got := Guideline("faq"); got != "Professional section with relevant content" {
		t.Errorf("Guideline(faq) = %q", got)
	}
}

func TestArtifactFromFiles_QualifiedWins(t *testing.T) {
	a := ArtifactFromFiles("hero", map[string]string{
		"hero.html":  "<section>q</section>",
		"html":       "<section>bare</section>",
		"css":        ".x{}",
		"javascript": "console.log(1)",
	})
	if a.Markup != "<section>q</section>" {
		t.Errorf("Markup = %q", a.Markup)
	}
	if a.Style != ".x{}" || a.Behavior != "console.log(1)" {
		t.Errorf("Style/Behavior = %q / %q", a.Style, a.Behavior)
	}
}

func TestSiteIDsRenderOrder(t *testing.T) {
	s := Site{"footer": {}, "hero": {}, "header": {}}
	if got := s.IDs(); !reflect.DeepEqual(got, []string{"header", "hero", "footer"}) {
		t.Errorf("IDs = %v", got)
	}
	if got := len(s.Files()); got != 9 {
		t.Errorf("Files len = %d, want 9", got)
	}
}

func TestFallback_KnownComponentsComplete(t *testing.T) {
	req := GenerationRequest{BusinessDescription: "Sunny Side Bakery", WebsiteType: "Restaurant"}
	for _, id := range append([]string{Header, Hero, Footer}, Optional...) {
		if !HasFallback(id) {
			t.Errorf("no dedicated fallback for %s", id)
		}
		a := Fallback(id, req)
		if a.Empty() {
			t.Errorf("Fallback(%s) is empty", id)
		}
		if a.Style == "" {
			t.Errorf("Fallback(%s) has no style", id)
		}
		if strings.Contains(a.Markup, "{{") {
			t.Errorf("Fallback(%s) has unrendered template actions", id)
		}
	}
	if !strings.Contains(Fallback(Header, req).Markup, "Sunny Side Bakery") {
		t.Error("header fallback should carry the brand name")
	}
}

func TestFallback_UnknownIsGenericSection(t *testing.T) {
	a := Fallback("faq-corner", GenerationRequest{WebsiteType: "Blog"})
	if a.Empty() {
		t.Fatal("generic fallback is empty")
	}
	if !strings.Contains(a.Markup, `id="faq-corner"`) || !strings.Contains(a.Markup, "Faq Corner") {
		t.Errorf("generic fallback markup = %q", a.Markup)
	}
}

func TestFallback_EscapesBrand(t *testing.T) {
	a := Fallback(Hero, GenerationRequest{BusinessDescription: "<script>alert(1)</script> shop"})
	if strings.Contains(a.Markup, "<script>") {
		t.Error("brand name should be escaped in markup")
	}
}

func TestPage_RenderOrderAndLinks(t *testing.T) {
	s := Site{
		Footer: {Markup: "<footer>f</footer>"},
		Header: {Markup: "<header>h</header>"},
		Hero:   {Markup: "<section>hero</section>"},
	}
	page, err := Page("Acme & Co", s)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	h := strings.Index(page, "<header>h</header>")
	hero := strings.Index(page, "<section>hero</section>")
	f := strings.Index(page, "<footer>f</footer>")
	if h < 0 || hero < h || f < hero {
		t.Errorf("sections out of order:\n%s", page)
	}
	if !strings.Contains(page, `<link rel="stylesheet" href="hero.css">`) {
		t.Error("missing stylesheet link")
	}
	if !strings.Contains(page, `<script src="footer.js"></script>`) {
		t.Error("missing script tag")
	}
	if !strings.Contains(page, "<title>Acme &amp; Co</title>") {
		t.Error("title not escaped")
	}
}
