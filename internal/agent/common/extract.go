package common

import (
	"regexp"
	"strings"
)

// PhoneMask replaces the middle four digits of a masked phone number.
const PhoneMask = "****"

var (
	orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,20}$`)
	phonePattern   = regexp.MustCompile(`^1[3-9]\d{9}$`)

	// Labelled patterns are tried first; the bare token is the last resort.
	orderIDExtractors = []*regexp.Regexp{
		regexp.MustCompile(`订单号[：:#\s]*([A-Za-z0-9]{6,20})`),
		regexp.MustCompile(`订单[：:#\s]*([A-Za-z0-9]{6,20})`),
		regexp.MustCompile(`(?i)\border[：:#\s]*([A-Za-z0-9]{6,20})`),
		regexp.MustCompile(`(?i)\bNO[.：:#\s]+([A-Za-z0-9]{6,20})`),
		regexp.MustCompile(`\b([A-Za-z0-9]{6,20})\b`),
	}

	trackingLabelled = regexp.MustCompile(`(?:快递单号|运单号|物流单号|单号)[：:#\s]*([A-Za-z0-9]{8,30})`)
	// Carrier prefix of up to four letters followed by at least eight digits, e.g. SF1234567890.
	trackingShape = regexp.MustCompile(`(?i)\b[A-Z]{0,4}\d{8,26}\b`)

	phoneExtractors = []*regexp.Regexp{
		regexp.MustCompile(`(?:手机号?|联系电话|电话)[：:\s]*(\d{3}\*{4}\d{4})`),
		regexp.MustCompile(`(?:手机号?|联系电话|电话)[：:\s]*(\d{11})`),
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// ValidateOrderID reports whether id is 6 to 20 ASCII letters or digits.
func ValidateOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

// ValidatePhone checks a mainland mobile number, ignoring mask stars and dashes.
func ValidatePhone(phone string) bool {
	if phone == "" {
		return false
	}
	if strings.Contains(phone, PhoneMask) {
		phone = strings.Replace(phone, PhoneMask, "0000", 1)
	}
	return phonePattern.MatchString(strings.ReplaceAll(phone, "-", ""))
}

// ExtractOrderID finds the first valid order id in free text.
func ExtractOrderID(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, re := range orderIDExtractors {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if ValidateOrderID(m[1]) {
				return m[1]
			}
		}
	}
	return ""
}

// ExtractTrackingNumber finds a labelled tracking number, or a carrier-shaped token
// that is not a phone number.
func ExtractTrackingNumber(text string) string {
	if m := trackingLabelled.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, candidate := range trackingShape.FindAllString(text, -1) {
		if ValidatePhone(candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// ExtractPhone finds a labelled phone number (plain or already masked).
func ExtractPhone(text string) string {
	for _, re := range phoneExtractors {
		if m := re.FindStringSubmatch(text); m != nil && ValidatePhone(m[1]) {
			return m[1]
		}
	}
	return ""
}

// RedactPhone masks the labelled phone number in text, if there is one.
func RedactPhone(text string) string {
	phone := ExtractPhone(text)
	if phone == "" || strings.Contains(phone, PhoneMask) {
		return text
	}
	return strings.Replace(text, phone, MaskPhone(phone), 1)
}

// MaskPhone keeps the first three and last four digits of an 11 digit number.
// Dashes and spaces are dropped before masking; other inputs are returned unchanged.
func MaskPhone(phone string) string {
	digits := strings.NewReplacer("-", "", " ", "").Replace(phone)
	if len(digits) != 11 || !isDigits(digits) {
		return phone
	}
	return digits[:3] + PhoneMask + digits[7:]
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
