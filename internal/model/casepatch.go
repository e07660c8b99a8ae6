package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"
)

// Payload is an opaque field map as sent by a device.
type Payload map[string]json.RawMessage

// CasePatch is a typed partial update: nil fields keep the server value.
type CasePatch struct {
	Title       *string
	Description *string

	CustomerName  *string
	CustomerPhone *string
	CustomerEmail *string

	AddressStreet  *string
	AddressCity    *string
	AddressState   *string
	AddressPincode *string
	Latitude       *float64
	Longitude      *float64

	Status              *CaseStatus
	Priority            *CasePriority
	AssignedTo          *uuid.UUID
	ClientID            *uuid.UUID
	Notes               *string
	VerificationType    *string
	VerificationOutcome *string
	FormData            json.RawMessage
}

// Keys present in the mobile projection that devices echo back but may not change.
var readOnlyCaseKeys = map[string]struct{}{
	"id": {}, "createdAt": {}, "updatedAt": {}, "assignedAt": {}, "completedAt": {},
	"client": {}, "attachments": {}, "syncStatus": {},
}

// ParseCasePatch decodes an allow-listed partial update.
// Unknown keys are rejected; read-only projection keys are ignored.
func ParseCasePatch(p Payload) (CasePatch, error) {
	var out CasePatch
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := p[k]
		var err error
		switch k {
		case "title":
			out.Title, err = decodeString(raw)
		case "description":
			out.Description, err = decodeString(raw)
		case "customerName":
			out.CustomerName, err = decodeString(raw)
		case "customerPhone":
			out.CustomerPhone, err = decodeString(raw)
		case "customerEmail":
			out.CustomerEmail, err = decodeString(raw)
		case "customer":
			err = out.decodeCustomer(raw)
		case "addressStreet":
			out.AddressStreet, err = decodeString(raw)
		case "addressCity":
			out.AddressCity, err = decodeString(raw)
		case "addressState":
			out.AddressState, err = decodeString(raw)
		case "addressPincode":
			out.AddressPincode, err = decodeString(raw)
		case "address":
			err = out.decodeAddress(raw)
		case "latitude":
			out.Latitude, err = decodeFloat(raw)
		case "longitude":
			out.Longitude, err = decodeFloat(raw)
		case "status":
			var s *string
			if s, err = decodeString(raw); err == nil && s != nil {
				st := CaseStatus(strings.ToUpper(*s))
				if !st.Valid() {
					err = fmt.Errorf("unknown status %q", *s)
				}
				out.Status = &st
			}
		case "priority":
			var s *string
			if s, err = decodeString(raw); err == nil && s != nil {
				pr := CasePriority(strings.ToUpper(*s))
				if !pr.Valid() {
					err = fmt.Errorf("unknown priority %q", *s)
				}
				out.Priority = &pr
			}
		case "assignedTo":
			out.AssignedTo, err = decodeUUID(raw)
		case "clientId":
			out.ClientID, err = decodeUUID(raw)
		case "notes":
			out.Notes, err = decodeString(raw)
		case "verificationType":
			out.VerificationType, err = decodeString(raw)
		case "verificationOutcome":
			out.VerificationOutcome, err = decodeString(raw)
		case "formData":
			if !isNull(raw) {
				out.FormData = append(json.RawMessage(nil), raw...)
			}
		default:
			if _, ok := readOnlyCaseKeys[k]; ok {
				continue
			}
			return CasePatch{}, fmt.Errorf("field %q is not mutable", k)
		}
		if err != nil {
			return CasePatch{}, fmt.Errorf("field %q: %w", k, err)
		}
	}
	return out, nil
}

func (p *CasePatch) decodeCustomer(raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	var c struct {
		Name  *string `json:"name"`
		Phone *string `json:"phone"`
		Email *string `json:"email"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return err
	}
	p.CustomerName, p.CustomerPhone, p.CustomerEmail = c.Name, c.Phone, c.Email
	return nil
}

func (p *CasePatch) decodeAddress(raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	var a struct {
		Street  *string `json:"street"`
		City    *string `json:"city"`
		State   *string `json:"state"`
		Pincode *string `json:"pincode"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return err
	}
	p.AddressStreet, p.AddressCity, p.AddressState, p.AddressPincode = a.Street, a.City, a.State, a.Pincode
	return nil
}

// TouchesAdminFields reports whether the patch changes fields reserved for elevated roles.
func (p CasePatch) TouchesAdminFields() bool {
	return p.Priority != nil || p.AssignedTo != nil || p.ClientID != nil
}

// Completes reports whether the patch sets the status to COMPLETED.
func (p CasePatch) Completes() bool {
	return p.Status != nil && *p.Status == CaseStatusCompleted
}

// Apply merges non-nil patch fields into c.
func (p CasePatch) Apply(c *Case) {
	setString(&c.Title, p.Title)
	setString(&c.Description, p.Description)
	setString(&c.CustomerName, p.CustomerName)
	setString(&c.CustomerPhone, p.CustomerPhone)
	setString(&c.CustomerEmail, p.CustomerEmail)
	setString(&c.AddressStreet, p.AddressStreet)
	setString(&c.AddressCity, p.AddressCity)
	setString(&c.AddressState, p.AddressState)
	setString(&c.AddressPincode, p.AddressPincode)
	if p.Latitude != nil {
		v := *p.Latitude
		c.Latitude = &v
	}
	if p.Longitude != nil {
		v := *p.Longitude
		c.Longitude = &v
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		c.AssignedTo = *p.AssignedTo
	}
	if p.ClientID != nil {
		c.Client = ClientRef{ID: *p.ClientID}
	}
	setString(&c.Notes, p.Notes)
	setString(&c.VerificationType, p.VerificationType)
	setString(&c.VerificationOutcome, p.VerificationOutcome)
	if p.FormData != nil {
		c.FormData = append(json.RawMessage(nil), p.FormData...)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeFloat(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func decodeUUID(raw json.RawMessage) (*uuid.UUID, error) {
	s, err := decodeString(raw)
	if err != nil || s == nil {
		return nil, err
	}
	id, err := uuid.FromString(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
