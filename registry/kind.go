/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package registry

import "fmt"

// Kind is how a device reports readings. It never changes once a device is created.
type Kind int

const (
	Wired Kind = iota
	Wireless
)

func (k Kind) String() string {
	switch k {
	case Wired:
		return "wired"
	case Wireless:
		return "wireless"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "wired":
		return Wired, nil
	case "wireless":
		return Wireless, nil
	}
	return 0, fmt.Errorf("unknown device kind '%s'", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Wired, Wireless:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("invalid device kind %d", int(k))
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
