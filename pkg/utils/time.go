package utils

// IsLeapYear reports whether year y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	if y%400 == 0 {
		return true
	}
	if y%100 == 0 {
		return false
	}
	return y%4 == 0
}

var cumDays = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// DayOfYear returns the 1-based ordinal day for the given calendar date.
func DayOfYear(year, month, day int) int {
	doy := cumDays[month-1] + day
	if month > 2 && IsLeapYear(year) {
		doy++
	}
	return doy
}

// EventCode formats a calendar date as the YYYY.DDD event code used in
// diagnostic file names.
func EventCode(year, month, day int) string {
	return itoa4(year) + "." + itoa3(DayOfYear(year, month, day))
}

func itoa4(n int) string {
	b := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && n > 0; i-- {
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b)
}

func itoa3(n int) string {
	b := []byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b)
}
