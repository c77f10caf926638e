// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/version/v2"
)

// Releases are the OpenStack releases this charm knows, oldest first.
var Releases = []string{"mitaka", "newton", "ocata", "pike", "queens", "rocky", "stein", "train"}

// DefaultRelease is used when neither the installed packages nor the
// installation source name a release.
const DefaultRelease = "mitaka"

// packageCodenames maps the major version of manila-common to a release.
var packageCodenames = map[int]string{
	2: "mitaka",
	3: "newton",
	4: "ocata",
	5: "pike",
	6: "queens",
	7: "rocky",
	8: "stein",
	9: "train",
}

var leadingDigits = regexp.MustCompile(`^\d+`)

// ReleaseForPackageVersion returns the release of a manila-common package
// version such as "1:9.1.0-0ubuntu1".
func ReleaseForPackageVersion(pkgVersion string) (string, error) {
	v := pkgVersion
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.IndexAny(v, "-~+"); i >= 0 {
		v = v[:i]
	}
	major := -1
	if num, err := version.Parse(v); err == nil {
		major = num.Major
	} else if digits := leadingDigits.FindString(v); digits != "" {
		major, _ = strconv.Atoi(digits)
	}
	release, ok := packageCodenames[major]
	if !ok {
		return "", errors.NotFoundf("release for %s version %q", ReleasePackage, pkgVersion)
	}
	return release, nil
}

// ReleaseForOrigin returns the release named by an installation source
// such as "cloud:bionic-train" or "cloud:bionic-rocky/proposed".
func ReleaseForOrigin(origin string) (string, error) {
	if !strings.HasPrefix(origin, "cloud:") {
		return "", errors.NotFoundf("release for origin %q", origin)
	}
	pocket := strings.TrimPrefix(origin, "cloud:")
	if i := strings.Index(pocket, "/"); i >= 0 {
		pocket = pocket[:i]
	}
	parts := strings.Split(pocket, "-")
	release := parts[len(parts)-1]
	if ReleaseIndex(release) < 0 {
		return "", errors.NotFoundf("release for origin %q", origin)
	}
	return release, nil
}

// ReleaseIndex returns the position of release in Releases, or -1.
func ReleaseIndex(release string) int {
	for i, r := range Releases {
		if r == release {
			return i
		}
	}
	return -1
}

// UsesPython3 reports whether the release ships the python3 packages.
func UsesPython3(release string) bool {
	return ReleaseIndex(release) >= ReleaseIndex("rocky")
}

// installedVersion returns the installed version of pkg, or "" when it is
// not installed.
func installedVersion(ctx context.Context, runner CommandRunner, pkg string) (string, error) {
	code, out, err := runner.Call(ctx, "dpkg-query", "--show", "--showformat=${Status}|${Version}", pkg)
	if err != nil {
		return "", errors.Trace(err)
	}
	if code != 0 {
		return "", nil
	}
	status, ver, _ := strings.Cut(strings.TrimSpace(out), "|")
	if !strings.HasSuffix(status, " installed") {
		return "", nil
	}
	return ver, nil
}

// SelectRelease picks the release from the installed manila-common
// package, falling back to the installation source and then the default.
func SelectRelease(ctx context.Context, runner CommandRunner, origin string) (string, error) {
	ver, err := installedVersion(ctx, runner, ReleasePackage)
	if err != nil {
		return "", errors.Trace(err)
	}
	if ver != "" {
		release, err := ReleaseForPackageVersion(ver)
		if err == nil {
			return release, nil
		}
		logger.Warningf("%v", err)
	}
	if release, err := ReleaseForOrigin(origin); err == nil {
		return release, nil
	}
	return DefaultRelease, nil
}

// Packages returns the packages to install for release.
func Packages(release string) []string {
	if UsesPython3(release) {
		return []string{
			"manila-api",
			"manila-data",
			"manila-scheduler",
			"manila-share",
			"python3-manila",
			"apache2",
			"libapache2-mod-wsgi-py3",
			"haproxy",
		}
	}
	return []string{
		"manila-api",
		"manila-data",
		"manila-scheduler",
		"manila-share",
		"python-pymysql",
		// For a neutron-openvswitch subordinate.
		"python-apt",
		"apache2",
		"libapache2-mod-wsgi",
		"haproxy",
	}
}

// PurgePackages returns the packages that must be removed for release.
func PurgePackages(release string) []string {
	if !UsesPython3(release) {
		return nil
	}
	return []string{
		"python-manila",
		"python-memcache",
		"python-pymysql",
		"libapache2-mod-wsgi",
	}
}
