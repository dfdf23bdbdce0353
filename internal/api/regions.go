package api

import "strings"

// platform routing value -> regional cluster used by account/match endpoints
var platformToCluster = map[string]string{
	"euw1": "europe",
	"eun1": "europe",
	"ru":   "europe",
	"tr1":  "europe",
	"na1":  "americas",
	"br1":  "americas",
	"la1":  "americas",
	"la2":  "americas",
	"oc1":  "sea",
	"kr":   "asia",
	"jp1":  "asia",
	"vn2":  "sea",
}

// short region names accepted at registration -> platform
var regionToPlatform = map[string]string{
	"euw":  "euw1",
	"eune": "eun1",
	"na":   "na1",
	"kr":   "kr",
	"br":   "br1",
	"jp":   "jp1",
	"lan":  "la1",
	"las":  "la2",
	"oce":  "oc1",
	"ru":   "ru",
	"tr":   "tr1",
	"vn":   "vn2",
}

func ClusterFor(region string) string {
	if c, ok := platformToCluster[platformOf(region)]; ok {
		return c
	}
	return "europe"
}

// PlatformFor accepts either a short region ("euw") or a platform id ("euw1").
func PlatformFor(region string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(region))
	if p, ok := regionToPlatform[r]; ok {
		return p, true
	}
	if _, ok := platformToCluster[r]; ok {
		return r, true
	}
	return "", false
}

func platformOf(region string) string {
	if p, ok := PlatformFor(region); ok {
		return p
	}
	return strings.ToLower(region)
}
