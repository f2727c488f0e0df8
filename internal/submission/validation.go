package submission

import (
	"fmt"

	"github.com/hitoshi/roomie/internal/listing"
	"github.com/hitoshi/roomie/internal/model"
)

const maxContactChannels = 5

func (s *Service) sanitizeProfile(p model.SubmitterProfile) model.SubmitterProfile {
	p.Lifestyle = listing.SanitizeLifestyle(s.sanitizer, p.Lifestyle)
	p.Faculty = s.sanitizer.SanitizeText(p.Faculty)

	contacts := make([]model.ContactChannel, 0, len(p.ContactInfo))
	for _, c := range p.ContactInfo {
		contacts = append(contacts, model.ContactChannel{
			Platform: c.Platform,
			Username: s.sanitizer.SanitizeText(c.Username),
		})
	}
	p.ContactInfo = contacts
	return p
}

// validateProfile は応募者プロフィールを検証し、違反した全ての項目を返す。
func validateProfile(p model.SubmitterProfile) error {
	fields := make(map[string]string)

	if p.Faculty == "" {
		fields["submitter.faculty"] = "学部を入力してください。"
	}
	if p.Year <= 0 {
		fields["submitter.year"] = "学年を入力してください。"
	}

	switch {
	case len(p.ContactInfo) == 0:
		fields["submitter.contactInfo"] = "連絡先を1つ以上入力してください。"
	case len(p.ContactInfo) > maxContactChannels:
		fields["submitter.contactInfo"] = fmt.Sprintf("連絡先は%d件までです。", maxContactChannels)
	}
	for i, c := range p.ContactInfo {
		if !c.Platform.Valid() {
			fields[fmt.Sprintf("submitter.contactInfo[%d].platform", i)] =
				"連絡手段はwhatsapp, instagram, facebook, email, phoneのいずれかを指定してください。"
		}
		if c.Username == "" {
			fields[fmt.Sprintf("submitter.contactInfo[%d].username", i)] = "アカウント名を入力してください。"
		}
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}
