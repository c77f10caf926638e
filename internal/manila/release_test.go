// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type releaseSuite struct {
	baseSuite
}

var _ = gc.Suite(&releaseSuite{})

func (s *releaseSuite) TestReleaseForPackageVersion(c *gc.C) {
	for _, t := range []struct {
		version string
		release string
	}{
		{"2.0.0-0ubuntu1", "mitaka"},
		{"1:3.0.0-0ubuntu1", "newton"},
		{"1:6.0.0~b1-0ubuntu1", "queens"},
		{"1:7.0.0-0ubuntu1~cloud0", "rocky"},
		{"1:9.1.0-0ubuntu1", "train"},
		{"9", "train"},
	} {
		release, err := ReleaseForPackageVersion(t.version)
		c.Check(err, jc.ErrorIsNil, gc.Commentf("%s", t.version))
		c.Check(release, gc.Equals, t.release, gc.Commentf("%s", t.version))
	}

	_, err := ReleaseForPackageVersion("1:10.0.0-0ubuntu1")
	c.Check(err, jc.ErrorIs, errors.NotFound)
	_, err = ReleaseForPackageVersion("garbage")
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *releaseSuite) TestReleaseForOrigin(c *gc.C) {
	release, err := ReleaseForOrigin("cloud:bionic-train")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(release, gc.Equals, "train")

	release, err = ReleaseForOrigin("cloud:xenial-ocata/proposed")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(release, gc.Equals, "ocata")

	_, err = ReleaseForOrigin("distro")
	c.Check(err, jc.ErrorIs, errors.NotFound)
	_, err = ReleaseForOrigin("cloud:bionic-zed")
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *releaseSuite) TestPackages(c *gc.C) {
	c.Check(UsesPython3("queens"), jc.IsFalse)
	c.Check(UsesPython3("rocky"), jc.IsTrue)
	c.Check(set.NewStrings(Packages("queens")...).Contains("python-pymysql"), jc.IsTrue)
	c.Check(set.NewStrings(Packages("stein")...).Contains("python3-manila"), jc.IsTrue)
	c.Check(PurgePackages("pike"), gc.HasLen, 0)
	c.Check(set.NewStrings(PurgePackages("train")...).Contains("python-manila"), jc.IsTrue)
}

func (s *releaseSuite) TestSelectRelease(c *gc.C) {
	defer s.setupMocks(c).Finish()
	ctx := context.Background()

	s.expectPackage(ReleasePackage, "install ok installed|1:8.0.0-0ubuntu1")
	release, err := SelectRelease(ctx, s.runner, "distro")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(release, gc.Equals, "stein")

	s.expectPackage(ReleasePackage, "")
	release, err = SelectRelease(ctx, s.runner, "cloud:bionic-rocky")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(release, gc.Equals, "rocky")

	s.expectPackage(ReleasePackage, "")
	release, err = SelectRelease(ctx, s.runner, "distro")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(release, gc.Equals, DefaultRelease)
}
