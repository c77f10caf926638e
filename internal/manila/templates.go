// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"text/template"
)

const header = `###############################################################################
# [ WARNING ]
# configuration file maintained by Juju
# local changes will be overwritten.
###############################################################################
`

var manilaConfT = template.Must(template.New("manila.conf").Parse(header + `[DEFAULT]
verbose = {{.Verbose}}
debug = {{.Debug}}
use_syslog = {{.UseSyslog}}
log_config_append = /etc/manila/logging.conf
api_paste_config = /etc/manila/api-paste.ini
state_path = /var/lib/manila
auth_strategy = keystone
enabled_share_protocols = {{.ShareProtocols}}
{{- if .Backends}}
enabled_share_backends = {{.Backends}}
{{- end}}
{{- if .DefaultShareBackend}}
default_share_type = {{.DefaultShareBackend}}
{{- end}}
osapi_share_workers = {{.Workers}}
osapi_share_listen_port = {{.ListenPort}}
transport_url = {{.TransportURL}}
storage_availability_zone = nova

[database]
connection = {{.DatabaseURL}}
max_pool_size = 4

[keystone_authtoken]
auth_type = password
auth_uri = {{.AuthURI}}
auth_url = {{.AuthURL}}
project_domain_name = default
user_domain_name = default
project_name = {{.ServiceTenant}}
username = {{.ServiceUsername}}
password = {{.ServicePassword}}

[oslo_concurrency]
lock_path = /var/lib/manila/tmp

[oslo_messaging_notifications]
driver = messagingv2
{{- if .BackendLines}}

# Configuration from the share backends.
{{range .BackendLines}}{{.}}
{{end}}
{{- end}}
`))

var apiPasteT = template.Must(template.New("api-paste.ini").Parse(header + `[composite:osapi_share]
use = call:manila.api:root_app_factory
/: apiversions
/v1: openstack_share_api
/v2: openstack_share_api_v2

[composite:openstack_share_api]
use = call:manila.api.middleware.auth:pipeline_factory
noauth = cors faultwrap http_proxy_to_wsgi sizelimit noauth api
keystone = cors faultwrap http_proxy_to_wsgi sizelimit authtoken keystonecontext api
keystone_nolimit = cors faultwrap http_proxy_to_wsgi sizelimit authtoken keystonecontext api

[composite:openstack_share_api_v2]
use = call:manila.api.middleware.auth:pipeline_factory
noauth = cors faultwrap http_proxy_to_wsgi sizelimit noauth api_v2
keystone = cors faultwrap http_proxy_to_wsgi sizelimit authtoken keystonecontext api_v2
keystone_nolimit = cors faultwrap http_proxy_to_wsgi sizelimit authtoken keystonecontext api_v2

[filter:faultwrap]
paste.filter_factory = manila.api.middleware.fault:FaultWrapper.factory

[filter:noauth]
paste.filter_factory = manila.api.middleware.auth:NoAuthMiddleware.factory

[filter:sizelimit]
paste.filter_factory = oslo_middleware.sizelimit:RequestBodySizeLimiter.factory

[filter:http_proxy_to_wsgi]
paste.filter_factory = oslo_middleware.http_proxy_to_wsgi:HTTPProxyToWSGI.factory

[app:api]
paste.app_factory = manila.api.v1.router:APIRouter.factory

[app:api_v2]
paste.app_factory = manila.api.v2.router:APIRouter.factory

[pipeline:apiversions]
pipeline = cors faultwrap http_proxy_to_wsgi osshareversionapp

[app:osshareversionapp]
paste.app_factory = manila.api.versions:VersionsRouter.factory

[filter:keystonecontext]
paste.filter_factory = manila.api.middleware.auth:ManilaKeystoneContext.factory

[filter:authtoken]
paste.filter_factory = keystonemiddleware.auth_token:filter_factory

[filter:cors]
paste.filter_factory = oslo_middleware.cors:filter_factory
oslo_config_project = manila
`))

var loggingConfT = template.Must(template.New("logging.conf").Parse(header + `[loggers]
keys = root, manila

[handlers]
keys = stderr, stdout, null{{if .UseSyslog}}, syslog{{end}}

[formatters]
keys = default

[logger_root]
level = {{.RootLogLevel}}
handlers = {{if .UseSyslog}}syslog{{else}}null{{end}}

[logger_manila]
level = {{.RootLogLevel}}
handlers = stderr
qualname = manila

[handler_stderr]
class = StreamHandler
args = (sys.stderr,)
formatter = default

[handler_stdout]
class = StreamHandler
args = (sys.stdout,)
formatter = default

[handler_null]
class = logging.NullHandler
formatter = default
args = ()
{{- if .UseSyslog}}

[handler_syslog]
class = handlers.SysLogHandler
args = ('/dev/log', handlers.SysLogHandler.LOG_USER)
formatter = default
{{- end}}

[formatter_default]
format = %(asctime)s %(process)d %(levelname)s %(name)s %(message)s
`))

var wsgiConfT = template.Must(template.New("manila-api.conf").Parse(header + `Listen {{.ListenPort}}

<VirtualHost *:{{.ListenPort}}>
    WSGIDaemonProcess manila-api processes={{.Workers}} threads=1 user=manila group=manila display-name=%{GROUP}
    WSGIProcessGroup manila-api
    WSGIScriptAlias / /usr/bin/manila-wsgi
    WSGIApplicationGroup %{GLOBAL}
    WSGIPassAuthorization On
    ErrorLogFormat "%{cu}t %M"
    ErrorLog /var/log/apache2/manila_error.log
    CustomLog /var/log/apache2/manila_access.log combined

    <Directory /usr/bin>
        Require all granted
    </Directory>
</VirtualHost>
`))

var haproxyConfT = template.Must(template.New("haproxy.cfg").Parse(header + `global
    log /var/lib/haproxy/dev/log local0
    maxconn 20000
    user haproxy
    group haproxy
    spread-checks 0

defaults
    log global
    mode tcp
    option tcplog
    option dontlognull
    retries 3
    timeout queue 9000
    timeout connect 9000
    timeout client 90000
    timeout server 90000

frontend tcp-in_manila-api
    bind *:{{.APIPort}}
    default_backend manila-api

backend manila-api
    balance leastconn
    server {{.UnitSlug}} {{.Address}}:{{.ListenPort}} check
`))
