// Package providers imports all IPAM provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/yuriy-kovalchuk/hostdb/internal/ipam/infoblox"
)
