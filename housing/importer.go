package housing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hidenkeys/aloes/apperr"
	"gorm.io/gorm/clause"
)

const ImportedMessage = "Le locataire a bien été importé. Pensez à vérifier l'école, aisni que le pays de résidence actuel."

// registration is one record of the registration form export.
type registration struct {
	Fields struct {
		LastName         string      `json:"last_name"`
		FirstName        string      `json:"first_name"`
		Gender           string      `json:"gender"`
		School           string      `json:"school"`
		OtherSchool      string      `json:"other_school"`
		PhoneNumber      string      `json:"phone_number"`
		Birthdate        string      `json:"birthdate"`
		Birthplace       string      `json:"birthplace"`
		BirthDepartement string      `json:"birth_departement"`
		BirthCountry     string      `json:"birth_country"`
		Street           string      `json:"street"`
		City             string      `json:"city"`
		ZipCode          any         `json:"zip_code"`
		Email            string      `json:"email"`
	} `json:"fields"`
}

var importGenders = map[string]string{"H": GenderMale, "F": GenderFemale}

// ImportTenant creates a tenant from the first record of a registration
// export. The school is matched by name; an unknown school is left empty.
func (s *Store) ImportTenant(ctx context.Context, raw []byte) (*Tenant, error) {
	var records []registration
	if err := json.Unmarshal(raw, &records); err != nil || len(records) == 0 {
		return nil, apperr.Validation("Le JSON n'est pas un export d'inscription valide",
			map[string]string{"jsonfield": "json"})
	}
	f := records[0].Fields

	gender, ok := importGenders[f.Gender]
	if !ok {
		return nil, apperr.Validation("Genre inconnu", map[string]string{"gender": "oneof"})
	}
	if f.LastName == "" || f.FirstName == "" {
		return nil, apperr.Validation("Le nom et le prénom sont obligatoires",
			map[string]string{"last_name": "required", "first_name": "required"})
	}

	year := uint(1)
	t := &Tenant{
		Name:             f.LastName,
		FirstName:        f.FirstName,
		Gender:           gender,
		SchoolYear:       &year,
		Cellphone:        f.PhoneNumber,
		Birthcity:        f.Birthplace,
		Birthdepartement: f.BirthDepartement,
		Birthcountry:     f.BirthCountry,
		City:             f.City,
		Email:            f.Email,
	}

	if f.Birthdate != "" {
		d, err := time.Parse("2006-01-02", f.Birthdate)
		if err != nil {
			return nil, apperr.Validation("Date de naissance invalide", map[string]string{"birthdate": "datetime"})
		}
		t.Birthday = date(d)
	}
	if number, street, ok := strings.Cut(f.Street, " "); ok {
		t.StreetNumber = &number
		t.Street = street
	} else {
		t.Street = f.Street
	}
	if zip, ok := zipcode(f.ZipCode); ok {
		t.Zipcode = &zip
	}

	name := f.School
	if name == "" {
		name = f.OtherSchool
	}
	if name != "" {
		var school School
		res := s.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&school)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			t.SchoolID = &school.ID
		}
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// zipcode accepts the code as a JSON number or a string.
func zipcode(v any) (uint, bool) {
	var s string
	switch v := v.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = fmt.Sprintf("%.0f", v)
	default:
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}
