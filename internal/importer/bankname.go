package importer

import (
	"fmt"
	"strings"
	"unicode"
)

// turkishBanks maps the five-digit bank code of a TR IBAN to a display name.
var turkishBanks = map[string]string{
	"00010": "Ziraat Bankası",
	"00012": "Halkbank",
	"00015": "VakıfBank",
	"00032": "TEB",
	"00046": "Akbank",
	"00059": "Şekerbank",
	"00062": "Garanti BBVA",
	"00064": "İş Bankası",
	"00067": "Yapı Kredi",
	"00111": "QNB",
	"00134": "DenizBank",
	"00206": "Türkiye Finans",
	"00210": "Vakıf Katılım",
}

// NormalizeIBAN upper-cases the identifier and drops whitespace.
func NormalizeIBAN(iban string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, iban)
}

// InferBankName guesses a display name from an IBAN-like identifier.
func InferBankName(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) >= 9 && strings.HasPrefix(iban, "TR") {
		if name, ok := turkishBanks[iban[4:9]]; ok {
			return name
		}
	}
	if len(iban) >= 2 && isLetter(iban[0]) && isLetter(iban[1]) {
		return fmt.Sprintf("Bank (%s)", iban[:2])
	}
	return "Bank"
}

func isLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
