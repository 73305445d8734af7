package sqlinline

const QTrackOperation = `--sql dc280b6d-1266-4c42-b653-363f33500385
insert into generation_operations (
  job_token,
  media_type,
  model,
  request_json,
  status,
  attempts,
  owner,
  started_at,
  heartbeat_at,
  created_at,
  updated_at
) values (
  $1::text,
  $2::text,
  $3::text,
  $4::jsonb,
  'POLLING',
  0,
  $5::text,
  $6::timestamptz,
  now(),
  now(),
  now()
)
on conflict (job_token) do update set
  owner = excluded.owner,
  heartbeat_at = now(),
  updated_at = now()
where generation_operations.status = 'POLLING';
`

const QHeartbeatOperation = `--sql b5d5f88f-a907-4736-a27a-165d8cf80555
update generation_operations
set attempts = $2::int,
    heartbeat_at = now(),
    updated_at = now()
where job_token = $1::text
  and status = 'POLLING';
`

const QFinishOperation = `--sql 725d6e57-bf6a-4e5b-bfed-d992facac7d5
update generation_operations
set status = $2::text,
    message = nullif($3::text, ''),
    attempts = greatest(attempts, $4::int),
    updated_at = now()
where job_token = $1::text
  and status = 'POLLING';
`

const QClaimStaleOperation = `--sql 69361ba7-7838-4657-87ae-6b7ebf7ba2e4
with next_op as (
    select job_token
    from generation_operations
    where status = 'POLLING'
      and heartbeat_at < now() - make_interval(secs => $1::int)
    order by heartbeat_at asc
    for update skip locked
    limit 1
),
claimed as (
    update generation_operations
    set owner = $2::text, heartbeat_at = now(), updated_at = now()
    where job_token in (select job_token from next_op)
    returning job_token, request_json, started_at
)
select * from claimed;
`
