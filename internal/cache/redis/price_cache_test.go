package redis

import (
	"testing"
	"time"
)

func TestPriceKeyAndMinuteField(t *testing.T) {
	if got := priceKey("nova", "0xABcd"); got != "price:nova:0xabcd" {
		t.Fatalf("priceKey = %q", got)
	}
	at := time.Date(2024, 3, 5, 7, 9, 59, 999, time.FixedZone("x", -2*3600))
	if got := minuteField(at); got != "202403050909" {
		t.Fatalf("minuteField = %q", got)
	}
	if minuteField(at) != minuteField(at.Add(-59*time.Second)) {
		t.Fatal("same minute mapped to different fields")
	}
}
