package utils

import "strings"

const (
	DocumentCPF  = "CPF"
	DocumentCNPJ = "CNPJ"
)

func OnlyDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func DocumentType(document string) string {
	switch len(OnlyDigits(document)) {
	case 11:
		return DocumentCPF
	case 14:
		return DocumentCNPJ
	}
	return ""
}

func IsValidDocument(document string) bool {
	digits := OnlyDigits(document)
	switch len(digits) {
	case 11:
		return IsValidCPF(digits)
	case 14:
		return IsValidCNPJ(digits)
	}
	return false
}

func IsValidCPF(cpf string) bool {
	cpf = OnlyDigits(cpf)
	if len(cpf) != 11 || repeated(cpf) {
		return false
	}

	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cpf[i]-'0') * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if check != int(cpf[n]-'0') {
			return false
		}
	}
	return true
}

func IsValidCNPJ(cnpj string) bool {
	cnpj = OnlyDigits(cnpj)
	if len(cnpj) != 14 || repeated(cnpj) {
		return false
	}

	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for _, n := range []int{12, 13} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cnpj[i]-'0') * weights[len(weights)-n+i]
		}
		check := sum % 11
		if check < 2 {
			check = 0
		} else {
			check = 11 - check
		}
		if check != int(cnpj[n]-'0') {
			return false
		}
	}
	return true
}

// SplitPhone breaks a Brazilian phone number into area code and subscriber
// number, dropping a leading country code.
func SplitPhone(phone string) (area, number string) {
	digits := OnlyDigits(phone)
	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if len(digits) < 10 {
		return "", digits
	}
	return digits[:2], digits[2:]
}

func repeated(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
