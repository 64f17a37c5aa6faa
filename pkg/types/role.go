package types

import "strings"

// Role identifies which well-known Windows hive a carved result most likely
// is, judged from its self-recorded file name.
type Role int

const (
	RoleUnknown Role = iota
	RoleSystem
	RoleSoftware
	RoleSAM
	RoleSecurity
	RoleDefault
	RoleNTUser
	RoleUsrClass
	RoleAmcache
	RoleComponents
	RoleBCD
)

// String implements the Stringer interface for Role.
func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "SYSTEM"
	case RoleSoftware:
		return "SOFTWARE"
	case RoleSAM:
		return "SAM"
	case RoleSecurity:
		return "SECURITY"
	case RoleDefault:
		return "DEFAULT"
	case RoleNTUser:
		return "NTUSER.DAT"
	case RoleUsrClass:
		return "UsrClass.dat"
	case RoleAmcache:
		return "Amcache.hve"
	case RoleComponents:
		return "COMPONENTS"
	case RoleBCD:
		return "BCD"
	default:
		return "unknown"
	}
}

// ClassifyFileName maps a hive's embedded file name to a Role. The embedded
// name is the tail of the original path and is often clipped on the left
// ("emRoot\System32\Config\SAM"), so only the final path component is
// considered. Matching is case-insensitive. Unrecognized or empty names map
// to RoleUnknown.
func ClassifyFileName(name string) Role {
	if name == "" {
		return RoleUnknown
	}
	base := name
	if i := strings.LastIndexAny(base, "\\/"); i >= 0 {
		base = base[i+1:]
	}
	switch strings.ToUpper(base) {
	case "SYSTEM":
		return RoleSystem
	case "SOFTWARE":
		return RoleSoftware
	case "SAM":
		return RoleSAM
	case "SECURITY":
		return RoleSecurity
	case "DEFAULT":
		return RoleDefault
	case "NTUSER.DAT":
		return RoleNTUser
	case "USRCLASS.DAT":
		return RoleUsrClass
	case "AMCACHE.HVE":
		return RoleAmcache
	case "COMPONENTS":
		return RoleComponents
	case "BCD":
		return RoleBCD
	default:
		return RoleUnknown
	}
}
