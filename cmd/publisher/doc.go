// Command publisher stores content through any configured backend and can
// serve a backend over HTTP.
//
// The backend is chosen with --location or --config:
//
//	publisher -l file:///var/www/site put index.html ./build/index.html
//	publisher -l git:///srv/site?push=true publish -m "release 1.2" ./build
//	publisher -c mirror.yaml list
//	publisher -l s3://my-bucket/site?region=eu-west-1 get index.html
//
// Serving:
//
//	publisher keygen --out alice
//	publisher -l git:///srv/site serve --publisher-keys keys.json --listen-addr :8080
//	publisher -l "https://pub.example.com?key_id=alice&key_file=alice.pem" put notes.txt
package main
