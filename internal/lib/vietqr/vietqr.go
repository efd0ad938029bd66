// Package vietqr строит ссылки на QR-картинки сервиса img.vietqr.io для банковского перевода.
package vietqr

import (
	"net/url"
	"strconv"
)

// BaseURL адрес сервиса картинок.
const BaseURL = "https://img.vietqr.io/image/"

// Template вид картинки.
const Template = "compact"

// ImageURL ссылка на QR-код перевода amount на счёт accountNumber банка bankCode
// с назначением addInfo. Пустые amount, addInfo и accountName не попадают в запрос.
func ImageURL(bankCode, accountNumber string, amount int64, addInfo, accountName string) string {
	path := url.PathEscape(bankCode + "-" + accountNumber + "-" + Template + ".jpg")

	q := url.Values{}
	if amount > 0 {
		q.Set("amount", strconv.FormatInt(amount, 10))
	}
	if addInfo != "" {
		q.Set("addInfo", addInfo)
	}
	if accountName != "" {
		q.Set("accountName", accountName)
	}

	if len(q) == 0 {
		return BaseURL + path
	}
	return BaseURL + path + "?" + q.Encode()
}
