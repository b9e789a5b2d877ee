package queue

import (
	"fmt"
	"strconv"
	"strings"
)

// AlertBindingKey 网关订阅全部站点的告警事件
const AlertBindingKey = "site.*.alert"

// SiteRoutingKey 告警事件路由键 site.<site_id>.alert
func SiteRoutingKey(siteID int64) string {
	return "site." + strconv.FormatInt(siteID, 10) + ".alert"
}

// SiteIDFromRoutingKey 从路由键解析站点
func SiteIDFromRoutingKey(key string) (int64, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "site" || parts[2] != "alert" {
		return 0, fmt.Errorf("unexpected routing key %q", key)
	}
	return strconv.ParseInt(parts[1], 10, 64)
}
