// Package docgen builds the administrative documents of a tenant or a leasing
// from ODT templates.
package docgen

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/housing"
	"github.com/hidenkeys/aloes/user"
)

type Kind string

const (
	AplInfos                Kind = "apl-infos"
	RentContract            Kind = "rent-contract"
	CivilStatus             Kind = "civil-status"
	Guarantee               Kind = "guarantee"
	InsuranceExpiration     Kind = "insurance-expiration"
	TenantRecord            Kind = "tenant-record"
	LeaseEndAttestation     Kind = "lease-end-attestation"
	LeaseAttestation        Kind = "lease-attestation"
	LeaseAttestationEnglish Kind = "lease-attestation-english"
	ReservationAttestation  Kind = "reservation-attestation"
)

const (
	ContentType        = "application/vnd.oasis.opendocument.text; charset=UTF-8"
	MailingLabelsFile  = "etiquettes_courrier.odt"
	mailingLabelsModel = "mailing_labels.odt"
)

// leasingKinds are generated from a leasing id, the others from a tenant id.
var leasingKinds = map[Kind]bool{
	AplInfos:            true,
	RentContract:        true,
	CivilStatus:         true,
	Guarantee:           true,
	InsuranceExpiration: true,
	TenantRecord:        true,
}

// ParseKind checks that raw names a known document.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	switch k {
	case AplInfos, RentContract, CivilStatus, Guarantee, InsuranceExpiration, TenantRecord,
		LeaseEndAttestation, LeaseAttestation, LeaseAttestationEnglish, ReservationAttestation:
		return k, nil
	}
	return "", apperr.NotFound("Document inconnu")
}

// Document is a template ready to render.
type Document struct {
	Template string
	Filename string
	Context  map[string]any
}

// Loader fetches the rows a document is built from.
type Loader interface {
	Leasing(ctx context.Context, id uint) (*housing.Leasing, error)
	Tenant(ctx context.Context, id uint) (*housing.Tenant, error)
}

type Service struct {
	loader   Loader
	renderer Renderer
	now      func() time.Time
}

func NewService(loader Loader, renderer Renderer) *Service {
	return &Service{loader: loader, renderer: renderer, now: time.Now}
}

// Build loads the leasing or tenant id and prepares the document of kind.
// author is the signed-in user named in attestations.
func (s *Service) Build(ctx context.Context, kind Kind, id uint, author *user.User) (*Document, error) {
	if leasingKinds[kind] {
		l, err := s.loader.Leasing(ctx, id)
		if err != nil {
			return nil, err
		}
		return ForLeasing(kind, l, author, s.now())
	}
	t, err := s.loader.Tenant(ctx, id)
	if err != nil {
		return nil, err
	}
	return ForTenant(kind, t, author, s.now())
}

func (s *Service) Render(w io.Writer, doc *Document) error {
	return s.renderer.Render(w, doc.Template, doc.Context)
}

// filename joins the parts and strips every whitespace, as names are used in headers.
func filename(prefix string, t *housing.Tenant, suffix string) string {
	return strings.Join(strings.Fields(prefix+t.FirstName+t.Name+suffix), "") + ".odt"
}

func bornAccorded(t *housing.Tenant) string {
	if t.Gender == housing.GenderFemale {
		return "née"
	}
	return "né"
}

// Floor reads the floor from the second character of the room code.
func Floor(r *housing.Room) string {
	if len(r.Code) < 2 {
		return ""
	}
	floor := r.Code[1:2]
	if floor == "1" {
		return floor + "er étage"
	}
	return floor + "ieme étage"
}

// Address is the street address of the building the room belongs to.
func Address(r *housing.Room) string {
	if r.Building() == "G" {
		return "2 rue Édouard Belin"
	}
	return "4 place Édouard Branly"
}

func ForLeasing(kind Kind, l *housing.Leasing, author *user.User, now time.Time) (*Document, error) {
	t, r := l.Tenant, l.Room
	if t == nil || r == nil || r.Rent == nil {
		return nil, errors.New("docgen: leasing loaded without tenant, room or rent")
	}
	ctx := map[string]any{
		"leasing": l,
		"tenant":  t,
		"room":    r,
		"rent":    r.Rent,
		"now":     now,
		"user":    author,
	}

	switch kind {
	case AplInfos:
		return &Document{Template: "apl_infos.odt", Filename: filename("apl_infos_", t, ""), Context: ctx}, nil
	case RentContract:
		variant := "_aloes1"
		if r.Building() == "G" {
			variant = "_aloes2"
		}
		ctx["gender"] = t.Title()
		ctx["bornAccorded"] = bornAccorded(t)
		ctx["floor"] = Floor(r)
		ctx["address"] = Address(r)
		return &Document{
			Template: "rent_contract" + variant + ".odt",
			Filename: filename("contrat_location_", t, variant),
			Context:  ctx,
		}, nil
	case CivilStatus:
		ctx["totalCheque"] = r.Rent.Rent + r.Rent.TotalRent() + r.Rent.ApplicationFee
		return &Document{Template: "civil_status.odt", Filename: filename("etat_civil", t, ""), Context: ctx}, nil
	case Guarantee:
		ctx["address"] = Address(r)
		ctx["totalRent"] = r.Rent.TotalRent()
		ctx["totalRent48"] = r.Rent.TotalRent() * 48
		return &Document{Template: "guarantee.odt", Filename: filename("engagement_caution_", t, ""), Context: ctx}, nil
	case InsuranceExpiration:
		return &Document{
			Template: "insurance_expiration.odt",
			Filename: filename("expiration_assurance_", t, ""),
			Context:  ctx,
		}, nil
	case TenantRecord:
		return &Document{Template: "tenant_record.odt", Filename: filename("fiche_locataire_", t, ""), Context: ctx}, nil
	}
	return nil, apperr.NotFound("Document inconnu")
}

func ForTenant(kind Kind, t *housing.Tenant, author *user.User, now time.Time) (*Document, error) {
	ctx := map[string]any{
		"tenant":       t,
		"now":          now,
		"user":         author,
		"gender":       t.Title(),
		"bornAccorded": bornAccorded(t),
	}

	switch kind {
	case LeaseEndAttestation:
		if t.DepartureDate == nil {
			return nil, apperr.Conflict("Impossible de générer le document : le locataire n'a pas fini son bail.")
		}
		return &Document{
			Template: "lease_end_attestation.odt",
			Filename: filename("attestationFinDeBail", t, ""),
			Context:  ctx,
		}, nil
	case LeaseAttestation, LeaseAttestationEnglish:
		if t.CurrentLeasing == nil {
			return nil, apperr.Conflict("Impossible de générer le document : le locataire n'a pas de chambre.")
		}
		ctx["leasing"] = t.CurrentLeasing
		tmpl := "lease_attestation.odt"
		if kind == LeaseAttestationEnglish {
			tmpl = "lease_attestation_english.odt"
		}
		return &Document{Template: tmpl, Filename: filename("attesationResidence", t, ""), Context: ctx}, nil
	case ReservationAttestation:
		if t.NextLeasing == nil {
			return nil, apperr.Conflict("Le locataire n'a pas réservé de chambre")
		}
		ctx["leasing"] = t.NextLeasing
		return &Document{
			Template: "reservation_attestation.odt",
			Filename: filename("attestation_reservation_", t, ""),
			Context:  ctx,
		}, nil
	}
	return nil, apperr.NotFound("Document inconnu")
}

// LabelPair is one line of the label sheet; Second is nil for an odd last row.
type LabelPair struct {
	First  []string
	Second []string
}

// MailingLabels reads a CSV of tenant name and room rows and groups them by two.
func MailingLabels(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperr.Validation("Le fichier n'est pas un CSV valide", map[string]string{"file": "csv"})
	}

	var pairs []LabelPair
	for i := 0; i < len(records); i += 2 {
		p := LabelPair{First: records[i]}
		if i+1 < len(records) {
			p.Second = records[i+1]
		}
		pairs = append(pairs, p)
	}
	return &Document{
		Template: mailingLabelsModel,
		Filename: MailingLabelsFile,
		Context:  map[string]any{"tenantDoubles": pairs},
	}, nil
}
