package ingest

import "github.com/dvloznov/offshore-radar/internal/txn"

// Source column names shared by both report formats. The upstream bank
// export uses Cyrillic headers; these constants are the single place the
// raw names appear.
const (
	ColID               = "№п/п"
	ColClientCategory   = "Категория клиента"
	ColCountryResidence = "Страна резидентства"
	ColCitizenship      = "Гражданство"
	ColValueDate        = "Дата валютирования"
	ColAcceptanceDate   = "Дата приема"
	ColAmount           = "Сумма"
	ColAmountKZT        = "Сумма в тенге"
	ColCurrency         = "Валюта платежа"
	ColCity             = "Город"
	ColStatus           = "Состояние"
	ColCountryCode      = "Код страны"
)

// Incoming-only columns.
const (
	ColBeneficiaryName    = "Наименование бенефициара (наш клиент)"
	ColBeneficiaryAccount = "Номер счета бенефициара"
	ColPayer              = "Плательщик"
	ColPayerBankSwift     = "SWIFT Банка плательщика"
	ColPayerBank          = "Банк плательщика"
	ColPayerBankAddress   = "Адрес банка плательщика"
	ColPayerCountry       = "Страна отправителя"
)

// Outgoing-only columns.
const (
	ColPayerName            = "Наименование плательщика (наш клиент)"
	ColPayerAccount         = "Номер счета плательщика"
	ColRecipient            = "Получатель"
	ColRecipientBankSwift   = "SWIFT Банка получателя"
	ColRecipientBank        = "Банк получателя"
	ColRecipientBankAddress = "Адрес банка получателя"
	ColPaymentDetails       = "Детали платежа"
	ColRecipientCountry     = "Страна получателя"
)

var incomingColumns = []string{
	ColID,
	ColBeneficiaryName,
	ColClientCategory,
	ColCountryResidence,
	ColCitizenship,
	ColBeneficiaryAccount,
	ColValueDate,
	ColAcceptanceDate,
	ColAmount,
	ColAmountKZT,
	ColCurrency,
	ColPayer,
	ColPayerBankSwift,
	ColCity,
	ColPayerBank,
	ColPayerBankAddress,
	ColStatus,
	ColCountryCode,
	ColPayerCountry,
}

var outgoingColumns = []string{
	ColID,
	ColPayerName,
	ColClientCategory,
	ColCountryResidence,
	ColCitizenship,
	ColPayerAccount,
	ColValueDate,
	ColAcceptanceDate,
	ColAmount,
	ColAmountKZT,
	ColCurrency,
	ColRecipient,
	ColRecipientBankSwift,
	ColCity,
	ColRecipientBank,
	ColRecipientBankAddress,
	ColPaymentDetails,
	ColStatus,
	ColCountryCode,
	ColRecipientCountry,
}

// ExpectedColumns returns the expected header set for a direction, in
// source order.
func ExpectedColumns(d txn.Direction) []string {
	if d == txn.Outgoing {
		return outgoingColumns
	}
	return incomingColumns
}

// headerOffset is the number of decorative leading rows before the header
// row in the bank's export for each direction.
func headerOffset(d txn.Direction) int {
	if d == txn.Outgoing {
		return 5
	}
	return 4
}
